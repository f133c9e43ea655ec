package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

func sample() Message {
	return Message{
		Kind:       KindPacketSent,
		EventID:    12,
		ReviewerID: 4,
		ActorID:    1,
		At:         time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC),
	}
}

func TestLogPublisher(t *testing.T) {
	var buf bytes.Buffer
	p := NewLogPublisher(zerolog.New(&buf))

	if err := p.Publish(context.Background(), sample()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	out := buf.String()
	for _, want := range []string{`"kind":"packet_sent"`, `"event_id":12`, `"component":"notify"`} {
		if !strings.Contains(out, want) {
			t.Errorf("log output missing %s: %s", want, out)
		}
	}
}

type fakeWriter struct {
	written []kafka.Message
	err     error
}

func (f *fakeWriter) WriteMessages(_ context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.written = append(f.written, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	w := &fakeWriter{}
	p := NewKafkaPublisher(w)

	second := sample()
	second.EventID = 13
	if err := p.Publish(context.Background(), sample(), second); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(w.written) != 2 {
		t.Fatalf("expected 2 records, got %d", len(w.written))
	}
	if string(w.written[0].Key) != "reviewer-4" {
		t.Errorf("key = %q", w.written[0].Key)
	}
	var got Message
	if err := json.Unmarshal(w.written[1].Value, &got); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got.EventID != 13 || got.Kind != KindPacketSent {
		t.Errorf("unexpected payload %+v", got)
	}
}

func TestKafkaPublisher_Empty(t *testing.T) {
	w := &fakeWriter{err: errors.New("must not be called")}
	if err := NewKafkaPublisher(w).Publish(context.Background()); err != nil {
		t.Errorf("empty publish should be a no-op, got %v", err)
	}
}

func TestKafkaPublisher_Error(t *testing.T) {
	w := &fakeWriter{err: errors.New("broker down")}
	err := NewKafkaPublisher(w).Publish(context.Background(), sample())
	if err == nil || !strings.Contains(err.Error(), "broker down") {
		t.Errorf("expected wrapped broker error, got %v", err)
	}
}

type fakeSQS struct {
	inputs []*sqs.SendMessageInput
}

func (f *fakeSQS) SendMessage(_ context.Context, in *sqs.SendMessageInput, _ ...func(*sqs.Options)) (*sqs.SendMessageOutput, error) {
	f.inputs = append(f.inputs, in)
	return &sqs.SendMessageOutput{}, nil
}

func TestSQSPublisher(t *testing.T) {
	fake := &fakeSQS{}
	p := NewSQSPublisher(fake, "https://sqs.local/queue/mireview")

	msg := sample()
	msg.Kind = KindThirdReviewerAssigned
	if err := p.Publish(context.Background(), msg); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(fake.inputs) != 1 {
		t.Fatalf("expected one message, got %d", len(fake.inputs))
	}
	in := fake.inputs[0]
	if *in.QueueUrl != "https://sqs.local/queue/mireview" {
		t.Errorf("queue = %s", *in.QueueUrl)
	}
	if *in.MessageAttributes["kind"].StringValue != "third_reviewer_assigned" {
		t.Errorf("kind attribute = %s", *in.MessageAttributes["kind"].StringValue)
	}
	if !strings.Contains(*in.MessageBody, `"event_id":12`) {
		t.Errorf("body = %s", *in.MessageBody)
	}
}
