// Copyright 2026 The Harvestd Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package messaging connects the control plane and workers through a
// RabbitMQ wake-up queue. The queue is an optimization only: workers that
// never see a message still find work through periodic polling, so a lost
// or duplicated message is harmless.
package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"github.com/streadway/amqp"

	"github.com/harvestd/harvestd/internal/job"
	"github.com/harvestd/harvestd/internal/observability/logger"
)

// RabbitClient wraps a RabbitMQ connection and channel.
type RabbitClient struct {
	conn      *amqp.Connection
	channel   *amqp.Channel
	queueName string
	log       *slog.Logger
}

// queuedEvent is the wire shape of a job wake-up message.
type queuedEvent struct {
	JobID     string `json:"job_id"`
	DatasetID string `json:"dataset_id"`
	TenantID  string `json:"tenant_id"`
	Mode      string `json:"mode"`
}

// NewRabbitClient connects to RabbitMQ and declares the durable wake-up queue.
func NewRabbitClient(url, queueName string, log *slog.Logger) (*RabbitClient, error) {
	conn, err := amqp.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to RabbitMQ: %w", err)
	}
	ch, err := conn.Channel()
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to create channel: %w", err)
	}

	if _, err := ch.QueueDeclare(
		queueName,
		true,  // durable
		false, // autoDelete
		false, // exclusive
		false, // noWait
		nil,
	); err != nil {
		ch.Close()
		conn.Close()
		return nil, fmt.Errorf("declare queue %s: %w", queueName, err)
	}

	return &RabbitClient{
		conn:      conn,
		channel:   ch,
		queueName: queueName,
		log:       log,
	}, nil
}

// NotifyQueued publishes a wake-up message for a freshly enqueued job.
// It satisfies job.Notifier.
func (r *RabbitClient) NotifyQueued(ctx context.Context, j *job.Job) error {
	body, err := json.Marshal(queuedEvent{
		JobID:     j.ID,
		DatasetID: j.DatasetID,
		TenantID:  j.TenantID,
		Mode:      j.Mode(),
	})
	if err != nil {
		return fmt.Errorf("marshal queued event: %w", err)
	}

	if err := r.channel.Publish(
		"",          // default exchange
		r.queueName, // routing key (queue name)
		false,
		false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        body,
		},
	); err != nil {
		return fmt.Errorf("failed to publish to queue %s: %w", r.queueName, err)
	}
	return nil
}

// Close cleans up connection and channel
func (r *RabbitClient) Close() error {
	if err := r.channel.Close(); err != nil {
		return err
	}
	return r.conn.Close()
}

// Consumer turns wake-up messages into signals on a channel workers select on.
type Consumer struct {
	channel     *amqp.Channel
	consumerTag string
	wake        chan struct{}
	stopChan    chan struct{}
	doneChan    chan struct{}
	log         *slog.Logger
}

// StartConsumer begins consuming wake-up messages. Messages are acked
// immediately: the database is the source of truth for pending work, so a
// signal that arrives with nothing claimable costs only one empty poll.
func StartConsumer(client *RabbitClient, log *slog.Logger) (*Consumer, error) {
	ch, err := client.conn.Channel()
	if err != nil {
		return nil, fmt.Errorf("failed to open consumer channel: %w", err)
	}

	consumerTag := "harvestd-worker"
	msgs, err := ch.Consume(
		client.queueName,
		consumerTag,
		true, // autoAck: the poll loop is the ground truth
		false,
		false,
		false,
		nil,
	)
	if err != nil {
		ch.Close()
		return nil, fmt.Errorf("failed to start consuming from %s: %w", client.queueName, err)
	}

	c := &Consumer{
		channel:     ch,
		consumerTag: consumerTag,
		wake:        make(chan struct{}, 1),
		stopChan:    make(chan struct{}),
		doneChan:    make(chan struct{}),
		log:         log,
	}
	go c.consumeLoop(msgs)

	log.Info("job wake-up consumer started", logger.String("queue", client.queueName))
	return c, nil
}

// Wake returns the channel that receives a signal per wake-up message.
// The channel is buffered with depth one; coalesced signals are fine because
// a single poll drains all claimable work.
func (c *Consumer) Wake() <-chan struct{} {
	return c.wake
}

// consumeLoop forwards deliveries as wake signals until stopped.
func (c *Consumer) consumeLoop(msgs <-chan amqp.Delivery) {
	defer close(c.doneChan)

	for {
		select {
		case msg, ok := <-msgs:
			if !ok {
				c.log.Warn("wake-up delivery channel closed")
				return
			}
			var ev queuedEvent
			if err := json.Unmarshal(msg.Body, &ev); err != nil {
				c.log.Warn("dropping malformed wake-up message", logger.Error(err))
				continue
			}
			select {
			case c.wake <- struct{}{}:
			default:
				// A signal is already pending; coalesce.
			}

		case <-c.stopChan:
			_ = c.channel.Cancel(c.consumerTag, false)
			return
		}
	}
}

// Stop signals the consumer to stop and waits for cleanup
func (c *Consumer) Stop() {
	close(c.stopChan)
	<-c.doneChan
	_ = c.channel.Close()
	c.log.Info("job wake-up consumer stopped")
}
