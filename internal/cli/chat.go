package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/raphaelgruber/wspiernik/internal/client"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
)

var chatWait time.Duration

// chatFlow names the envelope types of one conversation kind.
type chatFlow struct {
	start    string
	message  string
	complete string
	// needsDescription is set when the first line is sent with the start message.
	needsDescription bool
}

var chatFlows = map[string]chatFlow{
	"survey": {
		start:    protocol.TypeSurveyStart,
		message:  protocol.TypeSurveyMessage,
		complete: protocol.TypeSurveyComplete,
	},
	"intervention": {
		start:            protocol.TypeInterventionStart,
		message:          protocol.TypeInterventionMessage,
		complete:         protocol.TypeInterventionComplete,
		needsDescription: true,
	},
	"support": {
		start:    protocol.TypeSupportStart,
		message:  protocol.TypeSupportMessage,
		complete: protocol.TypeSupportComplete,
	},
}

var chatCmd = &cobra.Command{
	Use:   "chat <survey|intervention|support>",
	Short: "Hold a conversation with a running server",
	Long: `Start a conversation over the server's WebSocket endpoint and exchange
messages line by line from stdin.

For an intervention the first line describes the situation. Type /end to
finish the conversation or /facts to list the stored facts. End of input
finishes the conversation too.

Examples:
  wspiernik chat survey
  wspiernik chat intervention
  echo "mama upadła w kuchni" | wspiernik chat intervention --wait 30s`,
	Args:      cobra.ExactArgs(1),
	ValidArgs: []string{"survey", "intervention", "support"},
	RunE:      runChat,
}

func init() {
	chatCmd.Flags().DurationVar(&chatWait, "wait", 0, "after the conversation ends, wait this long for extracted facts")
}

func runChat(cmd *cobra.Command, args []string) error {
	flow, ok := chatFlows[args[0]]
	if !ok {
		return fmt.Errorf("unknown conversation kind %q (want survey, intervention or support)", args[0])
	}

	ctx, cancel := context.WithCancel(commandContext(cmd))
	defer cancel()

	conn, err := newClient().Dial(ctx)
	if err != nil {
		return err
	}
	defer conn.Close()

	s := &chatSession{
		flow:        flow,
		conn:        conn,
		out:         cmd.OutOrStdout(),
		interactive: isTerminal(cmd.InOrStdin()),
	}
	return s.run(ctx, readLines(cmd.InOrStdin()), receive(ctx, conn))
}

type chatSession struct {
	flow        chatFlow
	conn        *client.Conn
	out         io.Writer
	interactive bool

	started   bool
	finished  bool
	closingID string
}

type received struct {
	env client.Envelope
	err error
}

func (s *chatSession) run(ctx context.Context, lines <-chan string, envs <-chan received) error {
	if s.flow.needsDescription {
		s.prompt("Describe the situation: ")
	} else {
		if err := s.send(s.flow.start, protocol.InboundPayload{}); err != nil {
			return err
		}
		s.started = true
	}

	var deadline <-chan time.Time
	for {
		select {
		case <-ctx.Done():
			return nil

		case <-deadline:
			return nil

		case line, ok := <-lines:
			if !ok {
				lines = nil
				if !s.started {
					return nil
				}
				if !s.finished && s.closingID == "" {
					if err := s.finish(); err != nil {
						return err
					}
				}
				continue
			}
			if err := s.handleLine(strings.TrimSpace(line)); err != nil {
				return err
			}

		case r := <-envs:
			if r.err != nil {
				if s.finished {
					return nil
				}
				return fmt.Errorf("connection lost: %w", r.err)
			}
			done := printEnvelope(s.out, r.env)
			if done {
				s.finished = true
				if chatWait <= 0 {
					return nil
				}
				deadline = time.After(chatWait)
				fmt.Fprintf(s.out, "[waiting up to %s for extracted facts]\n", chatWait)
				continue
			}
			if r.env.Type == protocol.TypeFactsExtracted && s.finished {
				return nil
			}
			if r.env.Type == protocol.TypeError && s.closingID != "" &&
				r.env.RequestID != nil && *r.env.RequestID == s.closingID {
				return nil
			}
			if !s.finished {
				s.prompt("> ")
			}
		}
	}
}

func (s *chatSession) handleLine(line string) error {
	switch {
	case line == "":
		s.prompt("> ")
		return nil
	case s.finished:
		return nil
	case !s.started:
		s.started = true
		return s.send(s.flow.start, protocol.InboundPayload{ScenarioDescription: line})
	case line == "/end":
		return s.finish()
	case line == "/facts":
		return s.send(protocol.TypeGetFacts, protocol.InboundPayload{})
	default:
		return s.send(s.flow.message, protocol.InboundPayload{Text: line})
	}
}

func (s *chatSession) finish() error {
	id, err := s.conn.Send(s.flow.complete, protocol.InboundPayload{})
	if err != nil {
		return err
	}
	s.closingID = id
	return nil
}

func (s *chatSession) send(typ string, payload protocol.InboundPayload) error {
	_, err := s.conn.Send(typ, payload)
	return err
}

func (s *chatSession) prompt(p string) {
	if s.interactive {
		fmt.Fprint(s.out, p)
	}
}

// printEnvelope renders one server message and reports whether it ends the
// conversation.
func printEnvelope(w io.Writer, env client.Envelope) bool {
	switch env.Type {
	case protocol.TypeSurveyQuestion, protocol.TypeInterventionQuestion:
		var p protocol.QuestionPayload
		if err := env.Decode(&p); err != nil {
			fmt.Fprintf(w, "[%v]\n", err)
			return false
		}
		fmt.Fprintf(w, "Wspiernik: %s\n", p.Question)

	case protocol.TypeSupportMessage:
		var p protocol.SupportMessagePayload
		if err := env.Decode(&p); err != nil {
			fmt.Fprintf(w, "[%v]\n", err)
			return false
		}
		fmt.Fprintf(w, "Wspiernik: %s\n", p.Text)
		if p.SuggestEnd {
			fmt.Fprintln(w, "[type /end to finish]")
		}

	case protocol.TypeInterventionScenarioMatched:
		var p protocol.ScenarioMatchedPayload
		if err := env.Decode(&p); err == nil {
			fmt.Fprintf(w, "[scenario %s: %s, confidence %.2f]\n", p.ScenarioKey, p.ScenarioName, p.Confidence)
		}

	case protocol.TypeSurveyCompleted:
		var p protocol.SurveyCompletedPayload
		if err := env.Decode(&p); err == nil {
			fmt.Fprintf(w, "[survey completed, %d facts saved]\n", p.FactsSaved)
		}
		return true

	case protocol.TypeInterventionCompleted, protocol.TypeSupportCompleted:
		var p protocol.CompletedPayload
		if err := env.Decode(&p); err == nil {
			fmt.Fprintf(w, "[conversation %s completed, facts extraction %s]\n", p.ConversationID, p.FactsExtraction)
		}
		return true

	case protocol.TypeFactsExtracted:
		var p protocol.FactsExtractedPayload
		if err := env.Decode(&p); err == nil {
			fmt.Fprintf(w, "[%d facts extracted]\n", p.FactsCount)
			for _, f := range p.Facts {
				fmt.Fprintf(w, "- [%s] %s\n", strings.Join(f.Tags, ", "), f.Value)
			}
		}

	case protocol.TypeFactsList:
		var p protocol.FactsListPayload
		if err := env.Decode(&p); err == nil {
			printFacts(w, &p)
		}

	case protocol.TypeError:
		var p protocol.ErrorPayload
		if err := env.Decode(&p); err == nil {
			fmt.Fprintf(w, "[error %s: %s]\n", p.Code, p.Message)
		}

	default:
		fmt.Fprintf(w, "[%s]\n", env.Type)
	}
	return false
}

// readLines streams r line by line. The channel closes at end of input.
func readLines(r io.Reader) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()
	return lines
}

// receive streams server messages until the connection fails or ctx ends.
func receive(ctx context.Context, conn *client.Conn) <-chan received {
	out := make(chan received)
	go func() {
		for {
			env, err := conn.Receive(ctx)
			select {
			case out <- received{env: env, err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
		}
	}()
	return out
}

func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
