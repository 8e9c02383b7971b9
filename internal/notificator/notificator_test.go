package notificator

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/wishliste/donum/internal/models"
	"github.com/wishliste/donum/pkg/logger"
)

type recordingSink struct {
	events []models.InvalidationEvent
}

func (s *recordingSink) Publish(_ context.Context, event models.InvalidationEvent) {
	s.events = append(s.events, event)
}

type panickingSink struct{}

func (panickingSink) Publish(context.Context, models.InvalidationEvent) {
	panic("sink exploded")
}

func TestPublishSurvivesPanickingSink(t *testing.T) {
	first, last := &recordingSink{}, &recordingSink{}
	n := NewNotificator(logger.NewNop(), first, panickingSink{}, last)

	event := models.InvalidationEvent{Type: models.EventItemReserved, ListID: 3, ItemID: 9}
	assert.NotPanics(t, func() { n.Publish(context.Background(), event) })

	assert.Equal(t, []models.InvalidationEvent{event}, first.events)
	assert.Equal(t, []models.InvalidationEvent{event}, last.events)
}
