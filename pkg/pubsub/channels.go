package pubsub

import (
	"fmt"
	"strings"
)

// Channels follow {prefix}:{scope}:{id}:to_{target}. The Kafka driver maps
// prefix and target to a topic and uses id as the partition key, so all
// events of one room stay ordered on one partition.
const (
	ChannelRoomToGateway     = "chat:room:%s:to_gateway"
	ChannelPresenceToGateway = "chat:presence:global:to_gateway"
	PatternChatToGateway     = "chat:*:*:to_gateway"

	TopicChatToGateway = "chat-to-gateway"
)

// Event types relayed between gateway instances.
const (
	EventRoomBroadcast     = "room_broadcast"
	EventPresenceBroadcast = "presence_broadcast"
)

// RoomToGatewayChannel returns the channel a room's broadcasts travel on.
func RoomToGatewayChannel(roomID string) string {
	return fmt.Sprintf(ChannelRoomToGateway, roomID)
}

// channelToTopicAndKey converts a channel to a Kafka topic and message key.
//
//	"chat:room:ab12:to_gateway"        → topic "chat-to-gateway", key "ab12"
//	"chat:presence:global:to_gateway" → topic "chat-to-gateway", key "global"
func channelToTopicAndKey(channel string) (topic, key string, err error) {
	parts := strings.Split(channel, ":")
	if len(parts) != 4 || !strings.HasPrefix(parts[3], "to_") || parts[0] == "" || parts[2] == "" {
		return "", "", fmt.Errorf("invalid channel format: %s", channel)
	}
	topic = parts[0] + "-" + strings.ReplaceAll(parts[3], "_", "-")
	return topic, parts[2], nil
}

// patternToTopic converts a subscribe pattern such as "chat:*:*:to_gateway"
// to the topic it covers.
func patternToTopic(pattern string) (string, error) {
	topic, _, err := channelToTopicAndKey(strings.ReplaceAll(pattern, "*", "any"))
	return topic, err
}
