package transport

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/slack-go/slack"
	"github.com/slack-go/slack/slackevents"
	"github.com/slack-go/slack/socketmode"

	"calbot/internal/logging"
)

type slackPoster interface {
	PostMessageContext(ctx context.Context, channelID string, options ...slack.MsgOption) (string, string, error)
}

// Slack serves the assistant over Socket Mode, replying in threads.
type Slack struct {
	api       *slack.Client
	poster    slackPoster
	chatter   Chatter
	channelID string // empty accepts every channel
	botUID    string
	logger    *slog.Logger
}

// NewSlack creates a Slack transport. The app token must have Socket Mode enabled.
func NewSlack(botToken, appToken, channelID string, chatter Chatter, logger *slog.Logger) *Slack {
	api := slack.New(botToken, slack.OptionAppLevelToken(appToken))
	s := newSlack(api, chatter, channelID, logger)
	s.api = api
	return s
}

func newSlack(poster slackPoster, chatter Chatter, channelID string, logger *slog.Logger) *Slack {
	return &Slack{
		poster:    poster,
		chatter:   chatter,
		channelID: channelID,
		logger:    logging.WithComponent(logger, "transport").With(logging.Transport("slack")),
	}
}

func (s *Slack) Name() string {
	return "slack"
}

// Run opens the Socket Mode connection and handles events until ctx is cancelled.
func (s *Slack) Run(ctx context.Context) error {
	auth, err := s.api.AuthTestContext(ctx)
	if err != nil {
		return fmt.Errorf("slack auth test: %w", err)
	}
	s.botUID = auth.UserID

	sm := socketmode.New(s.api)
	errs := make(chan error, 1)
	go func() {
		errs <- sm.RunContext(ctx)
	}()
	s.logger.Info("Connecting to Slack", "account", auth.User)

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-errs:
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("slack socket mode: %w", err)
		case evt, ok := <-sm.Events:
			if !ok {
				return nil
			}
			switch evt.Type {
			case socketmode.EventTypeConnected:
				s.logger.Info("Connected to Slack")
			case socketmode.EventTypeEventsAPI:
				event, ok := evt.Data.(slackevents.EventsAPIEvent)
				if !ok {
					continue
				}
				sm.Ack(*evt.Request)
				s.handleEventsAPI(ctx, event)
			}
		}
	}
}

func (s *Slack) handleEventsAPI(ctx context.Context, event slackevents.EventsAPIEvent) {
	if event.Type != slackevents.CallbackEvent {
		return
	}
	if ev, ok := event.InnerEvent.Data.(*slackevents.MessageEvent); ok {
		s.handleMessage(ctx, ev)
	}
}

func (s *Slack) handleMessage(ctx context.Context, ev *slackevents.MessageEvent) {
	if ev.User == s.botUID || ev.BotID != "" || ev.SubType != "" {
		return
	}
	if s.channelID != "" && ev.Channel != s.channelID {
		return
	}

	reply, ok := respond(ctx, s.chatter, ev.Text)
	if !ok {
		return
	}
	thread := ev.ThreadTimeStamp
	if thread == "" {
		thread = ev.TimeStamp
	}
	if _, _, err := s.poster.PostMessageContext(ctx, ev.Channel,
		slack.MsgOptionText(reply, false),
		slack.MsgOptionTS(thread),
	); err != nil {
		s.logger.Error("Failed to send reply", "channel_id", ev.Channel, logging.Err(err))
	}
}
