package gateway

import (
	"context"
	"strings"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"

	"github.com/rahul/whatsmap/internal/agent"
)

// discordMessageLimit is Discord's maximum message length.
const discordMessageLimit = 2000

type DiscordGateway struct {
	Session   *discordgo.Session
	Submitter agent.Submitter
	logger    *zap.Logger
	ctx       context.Context
}

func NewDiscordGateway(token string, submitter agent.Submitter, logger *zap.Logger) (*DiscordGateway, error) {
	session, err := discordgo.New("Bot " + token)
	if err != nil {
		return nil, err
	}
	session.Identify.Intents = discordgo.IntentsGuildMessages | discordgo.IntentsDirectMessages | discordgo.IntentMessageContent

	return &DiscordGateway{
		Session:   session,
		Submitter: submitter,
		logger:    logger,
		ctx:       context.Background(),
	}, nil
}

func (dg *DiscordGateway) Start(ctx context.Context) error {
	dg.ctx = ctx
	dg.Session.AddHandler(dg.onMessage)
	if err := dg.Session.Open(); err != nil {
		return err
	}
	dg.logger.Info("discord connected")

	<-ctx.Done()
	return nil
}

func (dg *DiscordGateway) onMessage(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || strings.TrimSpace(m.Content) == "" {
		return
	}

	dg.logger.Info("message received", zap.String("gateway", "discord"), zap.String("from", m.Author.Username))

	resp := dg.Submitter.Submit(dg.ctx, m.ChannelID, m.Content)
	if err := dg.Send(m.ChannelID, Render(resp)); err != nil {
		dg.logger.Warn("discord send failed", zap.String("channel_id", m.ChannelID), zap.Error(err))
	}
}

func (dg *DiscordGateway) Send(chatID string, text string) error {
	for _, chunk := range chunkText(text, discordMessageLimit) {
		if _, err := dg.Session.ChannelMessageSend(chatID, chunk); err != nil {
			return err
		}
	}
	return nil
}

func (dg *DiscordGateway) Stop() error {
	return dg.Session.Close()
}
