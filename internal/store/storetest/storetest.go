// Package storetest holds a behavioral test suite shared by every
// store.Store implementation.
package storetest

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises s against the store contract. open must return an empty store.
func Run(t *testing.T, open func(t *testing.T) store.Store) {
	t.Helper()

	t.Run("facts round trip", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		sev := 7
		saved, err := s.SaveFacts(ctx, []models.Fact{
			{ConversationID: "c1", Tags: []string{"medyczne", "leki"}, Value: "Bierze metforminę", Severity: &sev},
			{ConversationID: "c1", Tags: []string{"rodzina"}, Value: "Ma córkę Annę"},
		})
		require.NoError(t, err)
		require.Len(t, saved, 2)
		assert.NotEmpty(t, saved[0].ID)
		assert.NotEqual(t, saved[0].ID, saved[1].ID)
		assert.False(t, saved[0].ExtractedAt.IsZero())

		facts, err := s.ListFacts(ctx, 0)
		require.NoError(t, err)
		require.Len(t, facts, 2)
		assert.Equal(t, "Bierze metforminę", facts[0].Value)
		assert.Equal(t, []string{"medyczne", "leki"}, facts[0].Tags)
		require.NotNil(t, facts[0].Severity)
		assert.Equal(t, 7, *facts[0].Severity)
		assert.Nil(t, facts[1].Severity)
		assert.Equal(t, "c1", facts[1].ConversationID)
	})

	t.Run("list facts with limit keeps newest", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		for _, v := range []string{"a", "b", "c", "d"} {
			_, err := s.SaveFacts(ctx, []models.Fact{{Tags: []string{"t"}, Value: v}})
			require.NoError(t, err)
		}

		facts, err := s.ListFacts(ctx, 2)
		require.NoError(t, err)
		require.Len(t, facts, 2)
		assert.Equal(t, "c", facts[0].Value)
		assert.Equal(t, "d", facts[1].Value)

		n, err := s.CountFacts(ctx)
		require.NoError(t, err)
		assert.Equal(t, 4, n)
	})

	t.Run("empty store", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		facts, err := s.ListFacts(ctx, 0)
		require.NoError(t, err)
		assert.Empty(t, facts)

		n, err := s.CountFacts(ctx)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("conversation lifecycle", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		id, err := s.CreateConversation(ctx, models.KindIntervention, "fall")
		require.NoError(t, err)
		require.NotEmpty(t, id)

		at := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
		require.NoError(t, s.AppendMessage(ctx, id, models.Message{Role: models.RoleUser, Content: "Tata upadł", At: at}))
		require.NoError(t, s.AppendMessage(ctx, id, models.Message{Role: models.RoleAssistant, Content: "Czy jest przytomny?", At: at.Add(time.Second)}))

		msgs, err := s.ListMessages(ctx, id)
		require.NoError(t, err)
		require.Len(t, msgs, 2)
		assert.Equal(t, models.RoleUser, msgs[0].Role)
		assert.Equal(t, "Czy jest przytomny?", msgs[1].Content)
		assert.True(t, at.Equal(msgs[0].At))

		c, err := s.GetConversation(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, models.KindIntervention, c.Kind)
		assert.Equal(t, "fall", c.ScenarioKey)
		assert.Nil(t, c.EndedAt)
		assert.False(t, c.FactsExtracted)

		require.NoError(t, s.FinishConversation(ctx, id, "Opiekun: Tata upadł"))
		require.NoError(t, s.MarkFactsExtracted(ctx, id))

		c, err = s.GetConversation(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, c.EndedAt)
		assert.Equal(t, "Opiekun: Tata upadł", c.RawTranscript)
		assert.True(t, c.FactsExtracted)
	})

	t.Run("missing conversation", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		_, err := s.GetConversation(ctx, "does-not-exist")
		require.Error(t, err)
		assert.True(t, errors.Is(err, store.ErrNotFound))

		var serr *store.Error
		assert.ErrorAs(t, err, &serr)

		err = s.FinishConversation(ctx, "does-not-exist", "x")
		assert.ErrorIs(t, err, store.ErrNotFound)
	})

	t.Run("support logs", func(t *testing.T) {
		s := open(t)
		ctx := context.Background()

		id, err := s.CreateConversation(ctx, models.KindSupport, "")
		require.NoError(t, err)

		stress := 8
		saved, err := s.SaveSupportLog(ctx, models.SupportLog{
			ConversationID: id,
			StressLevel:    &stress,
			Needs:          []string{"odpoczynek", "rozmowa"},
		})
		require.NoError(t, err)
		assert.NotEmpty(t, saved.ID)

		_, err = s.SaveSupportLog(ctx, models.SupportLog{ConversationID: "other"})
		require.NoError(t, err)

		logs, err := s.ListSupportLogs(ctx, id)
		require.NoError(t, err)
		require.Len(t, logs, 1)
		require.NotNil(t, logs[0].StressLevel)
		assert.Equal(t, 8, *logs[0].StressLevel)
		assert.Equal(t, []string{"odpoczynek", "rozmowa"}, logs[0].Needs)
	})
}
