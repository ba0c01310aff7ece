package bot

import (
	"context"
	"role-keeper/tasks/temprole"
	"role-keeper/utils"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
	"go.uber.org/zap"
)

const (
	colorRemoved = 15158332 // Red
	colorRevoked = 15105570 // Orange
)

// RoleGateway applies and reverses temporary roles through the Discord
// REST API and sends the member notices.
type RoleGateway struct {
	session *discordgo.Session
	logger  *zap.Logger
}

func NewRoleGateway(s *discordgo.Session, logger *zap.Logger) *RoleGateway {
	return &RoleGateway{session: s, logger: logger.Named("gateway")}
}

var _ temprole.EffectGateway = (*RoleGateway)(nil)

func (g *RoleGateway) ApplyRole(ctx context.Context, userID, roleID, guildID string) (temprole.ApplyOutcome, error) {
	member, err := g.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		return 0, errors.Wrapf(err, "failed to fetch member %s", userID)
	}
	if hasRole(member, roleID) {
		return temprole.AlreadyApplied, nil
	}
	if err := g.session.GuildMemberRoleAdd(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		return 0, errors.Wrapf(err, "failed to add role %s to member %s", roleID, userID)
	}
	return temprole.Applied, nil
}

// RemoveRole treats a member who left or a deleted role as already
// reversed.
func (g *RoleGateway) RemoveRole(ctx context.Context, userID, roleID, guildID string) (temprole.RemoveOutcome, error) {
	member, err := g.session.GuildMember(guildID, userID, discordgo.WithContext(ctx))
	if err != nil {
		if isGone(err) {
			return temprole.AlreadyAbsent, nil
		}
		return 0, errors.Wrapf(err, "failed to fetch member %s", userID)
	}
	if !hasRole(member, roleID) {
		return temprole.AlreadyAbsent, nil
	}
	if err := g.session.GuildMemberRoleRemove(guildID, userID, roleID, discordgo.WithContext(ctx)); err != nil {
		if isGone(err) {
			return temprole.AlreadyAbsent, nil
		}
		return 0, errors.Wrapf(err, "failed to remove role %s from member %s", roleID, userID)
	}
	return temprole.Removed, nil
}

func (g *RoleGateway) Notify(ctx context.Context, userID, guildID string, notice temprole.Notice) (temprole.NotifyOutcome, error) {
	guildName := guildID
	if guild, err := g.guild(ctx, guildID); err == nil {
		guildName = guild.Name
	} else {
		g.logger.Debug("guild lookup failed, using id in notice", zap.String("guild", guildID), zap.Error(err))
	}
	roleColor := 0
	if role, err := g.role(ctx, guildID, notice.RoleID); err == nil {
		roleColor = role.Color
	}

	embed := noticeEmbed(notice, guildName, roleColor)
	if err := utils.SendPrivateEmbedMessage(g.session, userID, embed, discordgo.WithContext(ctx)); err != nil {
		if restCode(err) == discordgo.ErrCodeCannotSendMessagesToThisUser {
			return temprole.Undeliverable, nil
		}
		return 0, err
	}
	return temprole.Sent, nil
}

func (g *RoleGateway) guild(ctx context.Context, guildID string) (*discordgo.Guild, error) {
	if guild, err := g.session.State.Guild(guildID); err == nil {
		return guild, nil
	}
	return g.session.Guild(guildID, discordgo.WithContext(ctx))
}

func (g *RoleGateway) role(ctx context.Context, guildID, roleID string) (*discordgo.Role, error) {
	if role, err := g.session.State.Role(guildID, roleID); err == nil {
		return role, nil
	}
	roles, err := g.session.GuildRoles(guildID, discordgo.WithContext(ctx))
	if err != nil {
		return nil, err
	}
	if role := utils.FindRole(roles, roleID); role != nil {
		return role, nil
	}
	return nil, errors.Newf("role %s not found in guild %s", roleID, guildID)
}

// noticeEmbed builds the direct message a member receives for notice.
func noticeEmbed(notice temprole.Notice, guildName string, roleColor int) *discordgo.MessageEmbed {
	roleField := &discordgo.MessageEmbedField{Name: "Role", Value: "<@&" + notice.RoleID + ">", Inline: true}
	serverField := &discordgo.MessageEmbedField{Name: "Server", Value: guildName, Inline: true}

	switch notice.Kind {
	case temprole.NoticeGranted:
		return &discordgo.MessageEmbed{
			Title:       "Role Assigned",
			Description: notice.Message,
			Color:       roleColor,
			Fields: []*discordgo.MessageEmbedField{
				roleField,
				{Name: "Duration", Value: notice.Duration.Label(), Inline: true},
				serverField,
			},
		}
	case temprole.NoticeRevoked:
		return &discordgo.MessageEmbed{
			Title:       "Role Revoked",
			Description: "A moderator removed your temporary role before it expired.",
			Color:       colorRevoked,
			Fields:      []*discordgo.MessageEmbedField{roleField, serverField},
		}
	default:
		return &discordgo.MessageEmbed{
			Title:       "Role Removed",
			Description: notice.Message,
			Color:       colorRemoved,
			Fields:      []*discordgo.MessageEmbedField{roleField, serverField},
		}
	}
}

func hasRole(member *discordgo.Member, roleID string) bool {
	for _, id := range member.Roles {
		if id == roleID {
			return true
		}
	}
	return false
}

// restCode returns the Discord JSON error code carried by err, or 0.
func restCode(err error) int {
	var restErr *discordgo.RESTError
	if errors.As(err, &restErr) && restErr.Message != nil {
		return restErr.Message.Code
	}
	return 0
}

// isGone reports whether err means the member or the role no longer exists.
func isGone(err error) bool {
	switch restCode(err) {
	case discordgo.ErrCodeUnknownMember, discordgo.ErrCodeUnknownRole, discordgo.ErrCodeUnknownUser:
		return true
	}
	return false
}
