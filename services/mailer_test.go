package services

import (
	"testing"

	"engagement-api/models"

	"github.com/stretchr/testify/assert"
)

func TestMailerNilIsNoop(t *testing.T) {
	var m *Mailer
	user := &models.User{ID: "alice", Email: "alice@example.com", VerificationUUID: "uuid-1"}
	assert.NoError(t, m.SendVerificationEmail(user, "register"))
	assert.NoError(t, m.SendInvitationEmail("bob@example.com", "alice", "Alice"))
}

func TestMailerUnconfiguredDropsSend(t *testing.T) {
	m := &Mailer{} // no api key
	user := &models.User{ID: "alice", Email: "alice@example.com", VerificationUUID: "uuid-1"}
	assert.NoError(t, m.SendVerificationEmail(user, "update"))
}
