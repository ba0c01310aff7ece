// Package temprole implements the /temp, /temp_cancel and /temp_list slash
// commands on top of the grant scheduler.
package temprole

import (
	"context"
	"fmt"
	"role-keeper/model"
	"role-keeper/tasks/temprole"
	"role-keeper/utils"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const requestTimeout = 30 * time.Second

// Grants is the part of the grant scheduler the commands drive.
type Grants interface {
	Issue(ctx context.Context, req temprole.IssueRequest, now time.Time) (*model.GrantRecord, error)
	Cancel(ctx context.Context, userID, roleID, guildID string) error
}

// Lister reads stored grants for /temp_list.
type Lister interface {
	ListByGuild(ctx context.Context, guildID string) ([]model.GrantRecord, error)
	ListByMember(ctx context.Context, userID, guildID string) ([]model.GrantRecord, error)
}

type Handler struct {
	bot     model.Bot
	grants  Grants
	store   Lister
	logger  *zap.Logger
	pending *PendingRequests
}

func NewHandler(b model.Bot, grants Grants, store Lister) *Handler {
	h := &Handler{
		bot:    b,
		grants: grants,
		store:  store,
		logger: b.GetLogger().Named("temp_command"),
	}
	h.pending = NewPendingRequests(b.GetClock(), b.GetConfig().ConfirmTimeout, h.onTimeout)
	return h
}

// HandleTempCommand validates a /temp invocation and asks the moderator to
// confirm it. Nothing is stored until Confirm is pressed.
func (h *Handler) HandleTempCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil {
		h.respondError(s, i, "This command can only be used in a server.")
		return
	}
	data := i.ApplicationCommandData()
	opts := optionMap(data.Options)

	req := temprole.IssueRequest{
		UserID:       opts["member"].UserValue(nil).ID,
		RoleID:       opts["role"].RoleValue(nil, "").ID,
		GuildID:      i.GuildID,
		Duration:     model.DurationClass(opts["duration"].StringValue()),
		StartMessage: opts["start_message"].StringValue(),
		EndMessage:   opts["end_message"].StringValue(),
		IssuedBy:     i.Member.User.ID,
	}
	if !req.Duration.Valid() {
		h.respondError(s, i, fmt.Sprintf("Unknown duration %q.", req.Duration))
		return
	}
	if target, ok := resolvedUser(data, req.UserID); ok && target.Bot {
		h.respondError(s, i, "Temporary roles can't be given to bots.")
		return
	}

	gc, err := h.grantContext(s, i, req.RoleID)
	if err != nil {
		h.logger.Error("failed to load guild for permission check", zap.String("guild", i.GuildID), zap.Error(err))
		h.respondError(s, i, "Could not check permissions, please try again.")
		return
	}
	if msg := checkGrant(gc); msg != "" {
		h.respondError(s, i, msg)
		return
	}

	token := h.pending.Add(PendingRequest{
		InvokerID:   i.Member.User.ID,
		Interaction: i.Interaction,
		Request:     req,
	})
	if err := utils.SendEphemeralEmbed(s, i, confirmEmbed(req, gc.Role.Color), confirmButtons(token)); err != nil {
		h.pending.Discard(token)
		h.logger.Error("failed to send confirmation", zap.Error(err))
	}
}

// HandleComponent answers the Confirm and Cancel buttons.
func (h *Handler) HandleComponent(s *discordgo.Session, i *discordgo.InteractionCreate) {
	token, confirm, ok := parseComponent(i.MessageComponentData().CustomID)
	if !ok || i.Member == nil {
		return
	}

	pending, err := h.pending.Take(token, i.Member.User.ID)
	switch {
	case errors.Is(err, ErrNotInvoker):
		h.respondError(s, i, "Only the moderator who ran the command can answer this.")
		return
	case err != nil:
		h.update(s, i, "This request has expired.")
		return
	}

	if !confirm {
		h.update(s, i, "Operation cancelled.")
		return
	}

	if err := s.InteractionRespond(i.Interaction, &discordgo.InteractionResponse{
		Type: discordgo.InteractionResponseDeferredMessageUpdate,
	}); err != nil {
		h.logger.Warn("failed to acknowledge confirmation", zap.Error(err))
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	req := pending.Request
	_, err = h.grants.Issue(ctx, req, h.bot.GetClock().Now())

	var reply string
	switch {
	case err == nil:
		reply = fmt.Sprintf("✅ Gave <@&%s> to <@%s> for %s", req.RoleID, req.UserID, req.Duration.Label())
		h.audit(utils.LogInfo, "Issue", fmt.Sprintf("<@%s> gave <@&%s> to <@%s> for %s", req.IssuedBy, req.RoleID, req.UserID, req.Duration.Label()))
	case errors.Is(err, model.ErrEffectApplicationFailed):
		reply = fmt.Sprintf("⚠️ The grant is tracked, but <@&%s> could not be added to <@%s> right now. It will be removed on schedule.", req.RoleID, req.UserID)
		h.audit(utils.LogWarn, "Issue", err.Error())
	case errors.Is(err, temprole.ErrStopped):
		reply = "❌ The bot is shutting down. Please try again in a moment."
	default:
		h.logger.Error("failed to issue temporary role", zap.Error(err))
		reply = "❌ An error occurred while saving the temporary role."
		h.audit(utils.LogError, "Issue", err.Error())
	}
	if err := utils.EditOriginalResponse(s, i.Interaction, reply); err != nil {
		h.logger.Warn("failed to edit confirmation", zap.Error(err))
	}
}

// HandleCancelCommand revokes a grant before its deadline.
func (h *Handler) HandleCancelCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil {
		h.respondError(s, i, "This command can only be used in a server.")
		return
	}
	opts := optionMap(i.ApplicationCommandData().Options)
	userID := opts["member"].UserValue(nil).ID
	roleID := opts["role"].RoleValue(nil, "").ID

	gc, err := h.grantContext(s, i, roleID)
	if err != nil {
		h.logger.Error("failed to load guild for permission check", zap.String("guild", i.GuildID), zap.Error(err))
		h.respondError(s, i, "Could not check permissions, please try again.")
		return
	}
	if msg := checkGrant(gc); msg != "" {
		h.respondError(s, i, msg)
		return
	}

	if err := utils.DeferResponse(s, i, true); err != nil {
		h.logger.Warn("failed to defer response", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()
	err = h.grants.Cancel(ctx, userID, roleID, i.GuildID)

	var reply string
	switch {
	case err == nil:
		reply = fmt.Sprintf("✅ Removed <@&%s> from <@%s>.", roleID, userID)
		h.audit(utils.LogInfo, "Cancel", fmt.Sprintf("<@%s> revoked <@&%s> from <@%s>", i.Member.User.ID, roleID, userID))
	case errors.Is(err, model.ErrNotFound):
		reply = "No temporary role is tracked for that member and role."
	case errors.Is(err, model.ErrEffectReversalFailed):
		reply = "⚠️ The role could not be removed right now. It will be retried automatically."
		h.audit(utils.LogWarn, "Cancel", err.Error())
	default:
		h.logger.Error("failed to cancel temporary role", zap.Error(err))
		reply = "❌ An error occurred while cancelling the temporary role."
		h.audit(utils.LogError, "Cancel", err.Error())
	}
	if err := utils.SendFollowUp(s, i.Interaction, reply); err != nil {
		h.logger.Warn("failed to send follow-up", zap.Error(err))
	}
}

// HandleListCommand shows the tracked grants of the guild or one member.
func (h *Handler) HandleListCommand(s *discordgo.Session, i *discordgo.InteractionCreate) {
	if i.Member == nil {
		h.respondError(s, i, "This command can only be used in a server.")
		return
	}
	level := utils.CheckPermission(h.permissionInput(s, i))
	if !utils.CanManageTempRoles(level) {
		h.respondError(s, i, "You don't have permission to manage roles!")
		return
	}

	if err := utils.DeferResponse(s, i, true); err != nil {
		h.logger.Warn("failed to defer response", zap.Error(err))
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	memberID := ""
	if opt, ok := optionMap(i.ApplicationCommandData().Options)["member"]; ok {
		memberID = opt.UserValue(nil).ID
	}
	records, err := h.listGrants(ctx, i.GuildID, memberID)
	if err != nil {
		h.logger.Error("failed to list temporary roles", zap.Error(err))
		if err := utils.SendFollowUpError(s, i.Interaction, "Could not load temporary roles."); err != nil {
			h.logger.Warn("failed to send follow-up", zap.Error(err))
		}
		return
	}

	embed, components := listEmbed(records, h.bot.GetClock().Now(), 1, memberID)
	if err := utils.SendFollowUpEmbed(s, i.Interaction, []*discordgo.MessageEmbed{embed}, components); err != nil {
		h.logger.Warn("failed to send follow-up", zap.Error(err))
	}
}

// HandleListPage answers the Previous / Next buttons of /temp_list. The list
// is re-read so a page always reflects the current records.
func (h *Handler) HandleListPage(s *discordgo.Session, i *discordgo.InteractionCreate) {
	page, args, err := utils.ParsePaginationID(i.MessageComponentData().CustomID, listPagePrefix)
	if err != nil {
		h.logger.Warn("malformed list page button", zap.Error(err))
		return
	}
	memberID := ""
	if len(args) > 0 {
		memberID = args[0]
	}

	ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
	defer cancel()

	records, err := h.listGrants(ctx, i.GuildID, memberID)
	if err != nil {
		h.logger.Error("failed to list temporary roles", zap.Error(err))
		h.respondError(s, i, "Could not load temporary roles.")
		return
	}
	embed, components := listEmbed(records, h.bot.GetClock().Now(), page, memberID)
	if err := utils.UpdateComponentEmbed(s, i, embed, components); err != nil {
		h.logger.Warn("failed to update list page", zap.Error(err))
	}
}

func (h *Handler) listGrants(ctx context.Context, guildID, memberID string) ([]model.GrantRecord, error) {
	if memberID != "" {
		return h.store.ListByMember(ctx, memberID, guildID)
	}
	return h.store.ListByGuild(ctx, guildID)
}

func (h *Handler) onTimeout(req PendingRequest) {
	if err := utils.EditOriginalResponse(h.bot.GetSession(), req.Interaction, "Operation timed out."); err != nil {
		h.logger.Debug("failed to mark confirmation as timed out", zap.Error(err))
	}
}

func (h *Handler) grantContext(s *discordgo.Session, i *discordgo.InteractionCreate, roleID string) (GrantContext, error) {
	guild, err := s.State.Guild(i.GuildID)
	if err != nil {
		if guild, err = s.Guild(i.GuildID); err != nil {
			return GrantContext{}, errors.Wrapf(err, "failed to fetch guild %s", i.GuildID)
		}
	}
	botMember, err := s.GuildMember(i.GuildID, s.State.User.ID)
	if err != nil {
		return GrantContext{}, errors.Wrap(err, "failed to fetch bot member")
	}

	in := h.permissionInput(s, i)
	in.GuildOwnerID = guild.OwnerID
	return GrantContext{
		GuildID:        i.GuildID,
		Invoker:        in,
		InvokerTop:     utils.HighestRolePosition(i.Member.Roles, guild.Roles),
		BotPermissions: i.AppPermissions,
		BotTop:         utils.HighestRolePosition(botMember.Roles, guild.Roles),
		Role:           utils.FindRole(guild.Roles, roleID),
	}, nil
}

func (h *Handler) permissionInput(s *discordgo.Session, i *discordgo.InteractionCreate) utils.PermissionInput {
	cfg := h.bot.GetConfig()
	in := utils.PermissionInput{
		UserID:       i.Member.User.ID,
		RoleIDs:      i.Member.Roles,
		Permissions:  i.Member.Permissions,
		AdminRoleID:  cfg.AdminRoleID,
		DeveloperIDs: cfg.DeveloperUserIDs,
	}
	if guild, err := s.State.Guild(i.GuildID); err == nil {
		in.GuildOwnerID = guild.OwnerID
	}
	return in
}

func (h *Handler) respondError(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	if err := utils.SendErrorResponse(s, i, msg); err != nil {
		h.logger.Warn("failed to send error response", zap.Error(err))
	}
}

func (h *Handler) update(s *discordgo.Session, i *discordgo.InteractionCreate, msg string) {
	if err := utils.UpdateComponentMessage(s, i, msg); err != nil {
		h.logger.Warn("failed to update confirmation", zap.Error(err))
	}
}

type channelLogFunc func(s utils.ChannelMessenger, channelID, module, operation, details string) error

func (h *Handler) audit(fn channelLogFunc, operation, details string) {
	if err := fn(h.bot.GetSession(), h.bot.GetConfig().LogChannelID, "TempRole", operation, details); err != nil {
		h.logger.Warn("failed to write audit log", zap.Error(err))
	}
}

func optionMap(options []*discordgo.ApplicationCommandInteractionDataOption) map[string]*discordgo.ApplicationCommandInteractionDataOption {
	m := make(map[string]*discordgo.ApplicationCommandInteractionDataOption, len(options))
	for _, opt := range options {
		m[opt.Name] = opt
	}
	return m
}

func resolvedUser(data discordgo.ApplicationCommandInteractionData, userID string) (*discordgo.User, bool) {
	if data.Resolved == nil {
		return nil, false
	}
	u, ok := data.Resolved.Users[userID]
	return u, ok
}
