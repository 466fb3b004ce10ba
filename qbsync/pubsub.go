package qbsync

import (
	"context"
	"encoding/json"
	"io"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"github.com/gin-gonic/gin"
	"github.com/hostbooks/qbsync_backend/config"
)

type SyncPubSubPayload struct {
	RunId uint `json:"run_id"`
}

type PubSubPushEnvelope struct {
	Message struct {
		Data      []byte `json:"data"`
		MessageId string `json:"messageId"`
	} `json:"message"`
	Subscription string `json:"subscription"`
}

// PublishSyncRun enqueues a queued run for the push worker.
func PublishSyncRun(ctx context.Context, runId uint) error {
	topicName := strings.TrimSpace(os.Getenv("QBSYNC_TOPIC"))
	if topicName == "" {
		topicName = "qbsync-run"
	}

	client, err := config.GetClient(ctx)
	if err != nil {
		return err
	}

	topic := client.Topic(topicName)
	if envBoolDefault("QBSYNC_CREATE_TOPIC", false) {
		topic, err = config.CreateTopicIfNotExists(client, topicName)
		if err != nil {
			return err
		}
	}

	payload := SyncPubSubPayload{RunId: runId}
	data, _ := json.Marshal(payload)
	res := topic.Publish(ctx, &pubsub.Message{Data: data})
	_, err = res.Get(ctx)
	return err
}

// PubSubPushHandler is the push-subscription endpoint. It always returns 204
// so malformed deliveries are dropped rather than redelivered forever.
func PubSubPushHandler(worker *Worker) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !envBoolDefault("ENABLE_QBSYNC_PUBSUB_PUSH_ENDPOINT", true) {
			c.Status(204)
			return
		}

		body, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(204)
			return
		}

		var envelope PubSubPushEnvelope
		if err := json.Unmarshal(body, &envelope); err != nil {
			c.Status(204)
			return
		}

		var payload SyncPubSubPayload
		if err := json.Unmarshal(envelope.Message.Data, &payload); err != nil {
			c.Status(204)
			return
		}
		if payload.RunId == 0 {
			c.Status(204)
			return
		}

		if err := worker.ProcessRun(c.Request.Context(), payload.RunId); err != nil {
			config.LogError(config.GetLogger(), "qbsync", "PubSubPushHandler", "run", payload.RunId, err)
		}
		c.Status(204)
	}
}

func envBoolDefault(key string, def bool) bool {
	val := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch val {
	case "true", "1", "yes", "y", "on":
		return true
	case "false", "0", "no", "n", "off":
		return false
	default:
		return def
	}
}
