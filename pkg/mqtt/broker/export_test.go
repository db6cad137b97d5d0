package broker

import (
	"context"

	"github.com/robustmq/robustmq/pkg/types"
)

// Exported aliases of unexported helpers, for external-package tests only.

var TestSubscribeKeyFor = subscribeKeyFor
var TestAclKeyFor = aclKeyFor
var TestShareGroupLeaderKeyFor = shareGroupLeaderKeyFor

func TestBlacklistKeyFor(t types.BlacklistType, resourceName string) string {
	return blacklistKeyFor(t, resourceName)
}

var TestHashPassword = hashPassword
var TestValidateTopicName = validateTopicName
var TestUTF8Valid = utf8Valid
var TestMapReasonFor311 = mapReasonFor311
var TestConnectionIDFrom = connectionIDFrom

const (
	TestReasonSuccess                  = reasonSuccess
	TestReasonNotAuthorized            = reasonNotAuthorized
	TestReasonBanned                   = reasonBanned
	TestReasonClientIDNotValid         = reasonClientIDNotValid
	TestReasonServerUnavailable        = reasonServerUnavailable
	TestReasonUnspecifiedError         = reasonUnspecifiedError
	TestReasonKeepAliveTimeout         = reasonKeepAliveTimeout
	TestReasonPacketIdentifierNotFound = reasonPacketIdentifierNotFound
)

// TestAuthenticate exposes (*Broker).authenticate to external tests.
func (b *Broker) TestAuthenticate(ctx context.Context, username, password string) error {
	return b.authenticate(ctx, username, password)
}

// TestCheckBanned exposes (*Broker).checkBanned to external tests.
func (b *Broker) TestCheckBanned(clientID, username string) error {
	return b.checkBanned(clientID, username)
}

// TestCheckACL exposes (*Broker).checkACL to external tests.
func (b *Broker) TestCheckACL(clientID, topic, action string) error {
	return b.checkACL(clientID, topic, action)
}
