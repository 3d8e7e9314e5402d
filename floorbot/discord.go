package floorbot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/lmittmann/tint"
	"github.com/shopspring/decimal"
)

const (
	commandOptionCollection = "collection"
	commandOptionPolicyID   = "policy_id"

	colorError   = 0xEB4034
	colorSuccess = 0x32A852
	colorBlue    = 0x3498DB

	// interactionTimeout bounds one command's network work. Discord
	// interaction tokens live 15 minutes; there's no reason to get
	// anywhere near that.
	interactionTimeout = 2 * time.Minute
)

// Discord wires the bot's core operations to the Discord gateway:
// session lifecycle, slash command registration, and rendering reports
// and errors as embeds.
type Discord struct {
	session            DiscordSessionHandler
	config             *DiscordConfig
	logger             *slog.Logger
	bot                *Bot
	connected          atomic.Bool
	metricConnects     atomic.Int64
	metricDisconnects  atomic.Int64
	removeHandlerFuncs []func()
}

func newDiscord(config *DiscordConfig, bot *Bot) *Discord {
	return &Discord{
		config: config,
		bot:    bot,
	}
}

// DiscordSessionHandler covers the methods of discordgo.Session the bot
// uses, to enable testing/mocking.
type DiscordSessionHandler interface {
	Open() error
	Close() error
	AddHandler(handler any) func()
	ApplicationCommandBulkOverwrite(
		appID string,
		guildID string,
		commands []*discordgo.ApplicationCommand,
		options ...discordgo.RequestOption,
	) ([]*discordgo.ApplicationCommand, error)
	InteractionRespond(
		interaction *discordgo.Interaction,
		resp *discordgo.InteractionResponse,
		options ...discordgo.RequestOption,
	) error
	InteractionResponseEdit(
		interaction *discordgo.Interaction,
		newresp *discordgo.WebhookEdit,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	ChannelMessageSend(
		channelID string,
		content string,
		options ...discordgo.RequestOption,
	) (*discordgo.Message, error)
	UpdateCustomStatus(state string) error
}

func (d *Discord) newSession() (*discordgo.Session, error) {
	session, err := discordgo.New("Bot " + d.config.Token)
	if err != nil {
		return nil, fmt.Errorf("error creating discord session: %w", err)
	}
	session.SyncEvents = true
	session.StateEnabled = false
	session.Identify.Intents = d.config.GatewayIntents
	if d.config.httpClient != nil {
		session.Client = d.config.httpClient
	}
	return session, nil
}

// registerCommands sends the bot's commands to the discord bulk
// overwrite endpoint.
func (d *Discord) registerCommands(
	options ...discordgo.RequestOption,
) ([]*discordgo.ApplicationCommand, error) {
	commands := []*discordgo.ApplicationCommand{
		d.appCommandFloor(),
		d.appCommandTracked(),
		d.appCommandTrack(),
		d.appCommandUntrack(),
		d.appCommandHelp(),
	}

	created, err := d.session.ApplicationCommandBulkOverwrite(
		d.config.ApplicationID,
		d.config.GuildID,
		commands,
		options...,
	)
	if err != nil {
		d.logger.Error("error overwriting discord commands", tint.Err(err))
		return created, err
	}
	for _, c := range created {
		d.logger.Info("Created command", "command", c.Name)
	}
	return created, nil
}

func (*Discord) appCommandFloor() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandFloor,
		Description: "Get the floor price of a collection",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionCollection,
				Description: "Collection name, as shown on the marketplace",
				Required:    true,
			},
		},
	}
}

func (*Discord) appCommandTracked() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandTracked,
		Description: "Floor, supply, volume and last sale for every tracked collection",
	}
}

func (*Discord) appCommandTrack() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandTrack,
		Description: "Add a policy id to this server's tracked list",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionPolicyID,
				Description: "Policy id of the collection",
				Required:    true,
			},
		},
	}
}

func (*Discord) appCommandUntrack() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandUntrack,
		Description: "Remove a policy id from this server's tracked list",
		Options: []*discordgo.ApplicationCommandOption{
			{
				Type:        discordgo.ApplicationCommandOptionString,
				Name:        commandOptionPolicyID,
				Description: "Policy id of the collection",
				Required:    true,
			},
		},
	}
}

func (*Discord) appCommandHelp() *discordgo.ApplicationCommand {
	return &discordgo.ApplicationCommand{
		Name:        DiscordSlashCommandHelp,
		Description: "How to use the bot",
	}
}

func (d *Discord) handlerReady() func(
	s *discordgo.Session,
	r *discordgo.Ready,
) {
	return func(s *discordgo.Session, _ *discordgo.Ready) {
		d.logger.Info(
			"Ready",
			"session_id", s.State.SessionID,
			"user_id", s.State.User.ID,
			"username", s.State.User.Username,
		)
		if d.config.CustomStatus != "" {
			if err := d.session.UpdateCustomStatus(d.config.CustomStatus); err != nil {
				d.logger.Warn("unable to set custom status", tint.Err(err))
			}
		}
	}
}

func (d *Discord) handlerConnect() func(
	s *discordgo.Session,
	r *discordgo.Connect,
) {
	return func(_ *discordgo.Session, _ *discordgo.Connect) {
		d.metricConnects.Add(1)
		d.connected.Store(true)
		d.logger.Info("Connected")
		if d.config.NotificationChannelID != "" && d.config.StartupMessage != "" {
			if _, err := d.session.ChannelMessageSend(
				d.config.NotificationChannelID,
				d.config.StartupMessage,
				discordgo.WithRetryOnRatelimit(false),
				discordgo.WithRestRetries(1),
			); err != nil {
				d.logger.Error("unable to send startup message", tint.Err(err))
			}
		}
	}
}

func (d *Discord) handlerDisconnect() func(
	s *discordgo.Session,
	r *discordgo.Disconnect,
) {
	return func(_ *discordgo.Session, _ *discordgo.Disconnect) {
		d.connected.Store(false)
		d.metricDisconnects.Add(1)
		d.logger.Info("disconnected")
	}
}

// handlerInteractionCreate dispatches slash commands. A panic anywhere
// in a handler is caught here and rendered as a generic failure, so a
// bad command never takes down the gateway loop.
func (d *Discord) handlerInteractionCreate() func(
	s *discordgo.Session,
	i *discordgo.InteractionCreate,
) {
	return func(_ *discordgo.Session, i *discordgo.InteractionCreate) {
		if i.Type != discordgo.InteractionApplicationCommand {
			return
		}
		ctx, cancel := context.WithTimeout(
			context.Background(),
			interactionTimeout,
		)
		defer cancel()

		defer func() {
			if r := recover(); r != nil {
				d.logger.Error(
					"panic in interaction handler",
					"recovered", r,
					"stack", string(debug.Stack()),
				)
				d.editResponse(
					i.Interaction,
					errorEmbed(DefaultDiscordErrorMessage),
				)
			}
		}()

		data := i.ApplicationCommandData()
		d.logger.InfoContext(
			ctx,
			"interaction received",
			"command", data.Name,
			"guild_id", i.GuildID,
		)

		if err := d.session.InteractionRespond(
			i.Interaction,
			&discordgo.InteractionResponse{
				Type: discordgo.InteractionResponseDeferredChannelMessageWithSource,
			},
		); err != nil {
			d.logger.Error("error acknowledging interaction", tint.Err(err))
			return
		}

		switch data.Name {
		case DiscordSlashCommandFloor:
			d.handleFloor(ctx, i, stringOption(data, commandOptionCollection))
		case DiscordSlashCommandTracked:
			d.handleTracked(ctx, i)
		case DiscordSlashCommandTrack:
			d.handleTrack(ctx, i, stringOption(data, commandOptionPolicyID))
		case DiscordSlashCommandUntrack:
			d.handleUntrack(ctx, i, stringOption(data, commandOptionPolicyID))
		case DiscordSlashCommandHelp:
			d.handleHelp(i)
		default:
			d.logger.Warn("unknown command", "command", data.Name)
			d.editResponse(
				i.Interaction,
				errorEmbed(DefaultDiscordErrorMessage),
			)
		}
	}
}

func (d *Discord) handleFloor(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	query string,
) {
	report, err := d.bot.LookupFloor(ctx, query)
	if err != nil {
		d.editResponse(
			i.Interaction,
			errorEmbed("There was an error when fetching the collections!"),
		)
		return
	}
	if !report.Found() {
		d.editResponse(
			i.Interaction,
			errorEmbed(fmt.Sprintf(
				"Couldn't find any collections named \"**%s**\"!",
				query,
			)),
		)
		return
	}

	embeds := make([]*discordgo.MessageEmbed, 0, len(report.Entries))
	for _, entry := range report.Entries {
		switch entry.Status {
		case ItemSuccess:
			embed := &discordgo.MessageEmbed{
				Title:       "Floor price",
				Description: fmt.Sprintf("%s ADA", entry.Price.String()),
				Color:       colorBlue,
				Author: &discordgo.MessageEmbedAuthor{
					Name: entry.Collection.DisplayName,
				},
			}
			// best effort; an embed without a thumbnail is fine
			imageURL, ok, imgErr := d.bot.cnft.ImageURL(
				ctx,
				entry.Collection.PolicyID,
			)
			if imgErr == nil && ok {
				embed.Thumbnail = &discordgo.MessageEmbedThumbnail{
					URL: imageURL,
				}
			}
			embeds = append(embeds, embed)
		case ItemErrored:
			if errors.Is(entry.Err, ErrNoFloorPrice) {
				embeds = append(embeds, errorEmbed(fmt.Sprintf(
					"Couldn't find the floor price for the %s collection!",
					entry.Collection.DisplayName,
				)))
			} else {
				embeds = append(embeds, errorEmbed(fmt.Sprintf(
					"There was an error when fetching the floor price for the %s collection!",
					entry.Collection.DisplayName,
				)))
			}
		}
	}
	d.editResponse(i.Interaction, embeds...)
}

func (d *Discord) handleTracked(
	ctx context.Context,
	i *discordgo.InteractionCreate,
) {
	guildID, ok := d.requireGuild(i)
	if !ok {
		return
	}

	report, err := d.bot.TrackedReport(ctx, guildID)
	if errors.Is(err, ErrNothingTracked) {
		d.editResponse(
			i.Interaction,
			errorEmbed("The list of policy ids is empty. Use the /track command to add some."),
		)
		return
	}
	if err != nil {
		d.editResponse(
			i.Interaction,
			errorEmbed(DefaultDiscordErrorMessage),
		)
		return
	}

	var description strings.Builder
	for _, entry := range report.Successful() {
		description.WriteString(fmt.Sprintf(
			"**%d. %s**\nFloor: %s\nSupply: %d\nVolume: %s\nLast sale: %s\n\n",
			entry.Position,
			entry.Name,
			entry.FloorPrice.String(),
			entry.Supply,
			entry.Volume.String(),
			formatOptionalAmount(entry.LastSale),
		))
	}
	d.editResponse(i.Interaction, &discordgo.MessageEmbed{
		Color:       colorBlue,
		Description: description.String(),
	})
}

func (d *Discord) handleTrack(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	policyID string,
) {
	guildID, ok := d.requireGuild(i)
	if !ok {
		return
	}

	collection, err := d.bot.Track(ctx, guildID, policyID)
	switch {
	case errors.Is(err, ErrAlreadyTracked):
		d.editResponse(
			i.Interaction,
			errorEmbed("This policy id is already added!"),
		)
	case errors.Is(err, ErrUnknownPolicy):
		d.editResponse(
			i.Interaction,
			errorEmbed("This doesn't seem to be a valid policy id!"),
		)
	case err != nil:
		d.editResponse(
			i.Interaction,
			errorEmbed("There was an error when fetching the collection!"),
		)
	default:
		d.editResponse(
			i.Interaction,
			successEmbed(fmt.Sprintf(
				"Successfully added **%s** to the list!",
				collection.DisplayName,
			)),
		)
	}
}

func (d *Discord) handleUntrack(
	ctx context.Context,
	i *discordgo.InteractionCreate,
	policyID string,
) {
	guildID, ok := d.requireGuild(i)
	if !ok {
		return
	}

	err := d.bot.Untrack(ctx, guildID, policyID)
	switch {
	case errors.Is(err, ErrNotTracked):
		d.editResponse(
			i.Interaction,
			errorEmbed("This policy id is not added!"),
		)
	case err != nil:
		d.editResponse(
			i.Interaction,
			errorEmbed(DefaultDiscordErrorMessage),
		)
	default:
		d.editResponse(
			i.Interaction,
			successEmbed(fmt.Sprintf(
				"Successfully removed **%s** from the list of policy ids!",
				policyID,
			)),
		)
	}
}

func (d *Discord) handleHelp(i *discordgo.InteractionCreate) {
	d.editResponse(i.Interaction, &discordgo.MessageEmbed{
		Title: "How to use floor bot?",
		Description: "Type /floor 'Name of the Project'\n\n" +
			"**Avoid using the Project name's abbreviation**\n" +
			"For Eg-CL,TCC,CN\n\n" +
			"**Type out the same name as on jpg**\n" +
			"For Eg - Cardano Lounge",
		Color: colorBlue,
	})
}

// requireGuild enforces that a command was invoked inside a server, and
// parses the guild id. Store-scoped commands are meaningless in DMs.
func (d *Discord) requireGuild(i *discordgo.InteractionCreate) (int64, bool) {
	if i.GuildID == "" {
		d.editResponse(
			i.Interaction,
			errorEmbed("This command can only be used in a server!"),
		)
		return 0, false
	}
	guildID, err := strconv.ParseInt(i.GuildID, 10, 64)
	if err != nil {
		d.logger.Error(
			"unparseable guild id",
			"guild_id", i.GuildID,
			tint.Err(err),
		)
		d.editResponse(
			i.Interaction,
			errorEmbed(DefaultDiscordErrorMessage),
		)
		return 0, false
	}
	return guildID, true
}

func (d *Discord) editResponse(
	interaction *discordgo.Interaction,
	embeds ...*discordgo.MessageEmbed,
) {
	_, err := d.session.InteractionResponseEdit(
		interaction,
		&discordgo.WebhookEdit{Embeds: &embeds},
	)
	if err != nil {
		d.logger.Error("error editing interaction response", tint.Err(err))
	}
}

func errorEmbed(text string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorError,
		Description: "❌ " + text,
	}
}

func successEmbed(text string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Color:       colorSuccess,
		Description: "✅ " + text,
	}
}

func formatOptionalAmount(amount *decimal.Decimal) string {
	if amount == nil {
		return "unknown"
	}
	return amount.String()
}

func stringOption(
	data discordgo.ApplicationCommandInteractionData,
	name string,
) string {
	for _, opt := range data.Options {
		if opt.Name == name {
			return opt.StringValue()
		}
	}
	return ""
}
