package notify

import (
	"context"
	"errors"
	"fmt"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/errorutils"
	"firebase.google.com/go/v4/messaging"
	"google.golang.org/api/option"
)

// MaxMulticastTokens is the FCM limit on tokens per multicast request.
const MaxMulticastTokens = 500

// MulticastSender is the subset of the FCM client used by the provider.
type MulticastSender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// FCMProvider delivers messages through Firebase Cloud Messaging.
type FCMProvider struct {
	sender    MulticastSender
	chunkSize int
	permanent func(error) bool
}

// NewFCMProvider wraps an FCM client.
func NewFCMProvider(sender MulticastSender) (*FCMProvider, error) {
	if sender == nil {
		return nil, errors.New("fcm provider: nil sender")
	}
	return &FCMProvider{
		sender:    sender,
		chunkSize: MaxMulticastTokens,
		permanent: permanentFCMError,
	}, nil
}

// NewFCMProviderFromCredentials initialises a Firebase app from a service account file.
func NewFCMProviderFromCredentials(ctx context.Context, credentialsFile string) (*FCMProvider, error) {
	if credentialsFile == "" {
		return nil, errors.New("fcm provider: empty credentials file")
	}
	app, err := firebase.NewApp(ctx, nil, option.WithCredentialsFile(credentialsFile))
	if err != nil {
		return nil, fmt.Errorf("fcm provider: init app: %w", err)
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("fcm provider: messaging client: %w", err)
	}
	return NewFCMProvider(client)
}

// Send delivers msg to every endpoint, chunked to the multicast limit. A chunk failing as a
// whole aborts the send and reports the error; results already gathered are discarded.
func (p *FCMProvider) Send(ctx context.Context, msg Message, endpoints []string) (BatchResult, error) {
	if len(endpoints) == 0 {
		return BatchResult{}, ErrNoEndpoints
	}
	var result BatchResult
	for start := 0; start < len(endpoints); start += p.chunkSize {
		end := start + p.chunkSize
		if end > len(endpoints) {
			end = len(endpoints)
		}
		chunk := endpoints[start:end]
		resp, err := p.sender.SendEachForMulticast(ctx, multicastMessage(msg, chunk))
		if err != nil {
			return BatchResult{}, fmt.Errorf("fcm provider: send: %w", err)
		}
		result.SuccessCount += resp.SuccessCount
		result.FailureCount += resp.FailureCount
		for i, r := range resp.Responses {
			if r == nil || r.Success || i >= len(chunk) {
				continue
			}
			if p.permanent(r.Error) {
				result.Rejected = append(result.Rejected, chunk[i])
			}
		}
	}
	return result, nil
}

func multicastMessage(msg Message, tokens []string) *messaging.MulticastMessage {
	badge := 1
	return &messaging.MulticastMessage{
		Tokens: tokens,
		Data:   msg.Data,
		Notification: &messaging.Notification{
			Title: msg.Title,
			Body:  msg.Body,
		},
		Android: &messaging.AndroidConfig{
			Priority: msg.Style.Priority,
			Notification: &messaging.AndroidNotification{
				Sound:     msg.Style.Sound,
				Color:     msg.Style.Color,
				ChannelID: ChannelID,
			},
		},
		APNS: &messaging.APNSConfig{
			Payload: &messaging.APNSPayload{
				Aps: &messaging.Aps{
					Sound: msg.Style.Sound,
					Badge: &badge,
				},
			},
		},
	}
}

func permanentFCMError(err error) bool {
	if err == nil {
		return false
	}
	return messaging.IsUnregistered(err) || errorutils.IsInvalidArgument(err) || errorutils.IsNotFound(err)
}
