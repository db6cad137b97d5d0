package broker_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robustmq/robustmq/pkg/cache"
	"github.com/robustmq/robustmq/pkg/mqtt/broker"
	"github.com/robustmq/robustmq/pkg/types"
)

func TestHashPasswordIsDeterministicAndDistinct(t *testing.T) {
	a := broker.TestHashPassword("hunter2")
	again := broker.TestHashPassword("hunter2")
	other := broker.TestHashPassword("hunter3")
	assert.Equal(t, a, again)
	assert.NotEqual(t, a, other)
}

func TestAuthenticateAllowsEmptyUsername(t *testing.T) {
	meta := newFakeMeta()
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())
	assert.NoError(t, b.TestAuthenticate(context.Background(), "", ""))
}

func TestAuthenticateRejectsUnknownUser(t *testing.T) {
	meta := newFakeMeta()
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())
	err := b.TestAuthenticate(context.Background(), "ghost", "whatever")
	assert.Error(t, err)
}

func TestAuthenticateAcceptsMatchingPassword(t *testing.T) {
	meta := newFakeMeta()
	meta.users["alice"] = newTestUser("alice", "correct-horse")
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())
	assert.NoError(t, b.TestAuthenticate(context.Background(), "alice", "correct-horse"))
}

func TestAuthenticateRejectsWrongPassword(t *testing.T) {
	meta := newFakeMeta()
	meta.users["alice"] = newTestUser("alice", "correct-horse")
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())
	assert.Error(t, b.TestAuthenticate(context.Background(), "alice", "wrong"))
}

func TestCheckBannedIgnoresExpiredBan(t *testing.T) {
	meta := newFakeMeta()
	b, _, c := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	seedBlacklist(t, c, types.BlacklistClientID, "device-9", time.Now().Add(-time.Hour))
	assert.NoError(t, b.TestCheckBanned("device-9", ""))
}

func TestCheckBannedRejectsActiveBan(t *testing.T) {
	meta := newFakeMeta()
	b, _, c := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	seedBlacklist(t, c, types.BlacklistUser, "mallory", time.Time{})
	assert.Error(t, b.TestCheckBanned("some-client", "mallory"))
}

func TestCheckACLDeniesMatchingDenyRule(t *testing.T) {
	meta := newFakeMeta()
	b, _, c := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())

	acl := types.ACL{ResourceType: "ClientId", ResourceName: "device-1", Topic: "sensors/temp", Action: "Publish", Permission: "Deny"}
	payload, err := json.Marshal(acl)
	require.NoError(t, err)
	require.NoError(t, c.Apply(cache.Update{
		ActionType:   cache.ActionSet,
		ResourceType: cache.ResourceACL,
		Key:          broker.TestAclKeyFor("ClientId", "device-1", "sensors/temp"),
		Data:         payload,
	}))

	assert.Error(t, b.TestCheckACL("device-1", "sensors/temp", "Publish"))
}

func TestCheckACLAllowsWhenNoRuleMatches(t *testing.T) {
	meta := newFakeMeta()
	b, _, _ := newTestBroker(t, meta, &fakeDeliverer{}, newFakeVersions())
	assert.NoError(t, b.TestCheckACL("device-1", "sensors/temp", "Publish"))
}

func seedBlacklist(t *testing.T, c *cache.Cache, kind types.BlacklistType, resource string, endTime time.Time) {
	t.Helper()
	ban := types.Blacklist{Type: kind, ResourceName: resource, EndTime: endTime}
	payload, err := json.Marshal(ban)
	require.NoError(t, err)
	require.NoError(t, c.Apply(cache.Update{
		ActionType:   cache.ActionSet,
		ResourceType: cache.ResourceBlacklist,
		Key:          broker.TestBlacklistKeyFor(kind, resource),
		Data:         payload,
	}))
}
