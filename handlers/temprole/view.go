package temprole

import (
	"fmt"
	"role-keeper/model"
	"role-keeper/tasks/temprole"
	"role-keeper/utils"
	"sort"
	"strings"
	"time"

	"github.com/bwmarrin/discordgo"
)

const (
	confirmPrefix = "temp_confirm:"
	declinePrefix = "temp_decline:"

	listPagePrefix = "temp_list_page"
	listPageSize   = 20
)

// IsComponent reports whether customID belongs to a /temp confirmation.
func IsComponent(customID string) bool {
	return strings.HasPrefix(customID, confirmPrefix) || strings.HasPrefix(customID, declinePrefix)
}

// IsListPage reports whether customID is a /temp_list page button.
func IsListPage(customID string) bool {
	return strings.HasPrefix(customID, listPagePrefix+":")
}

// parseComponent splits a confirmation custom ID into its token and whether
// it is the Confirm button.
func parseComponent(customID string) (token string, confirm bool, ok bool) {
	switch {
	case strings.HasPrefix(customID, confirmPrefix):
		return strings.TrimPrefix(customID, confirmPrefix), true, true
	case strings.HasPrefix(customID, declinePrefix):
		return strings.TrimPrefix(customID, declinePrefix), false, true
	}
	return "", false, false
}

func confirmEmbed(req temprole.IssueRequest, roleColor int) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       "Confirm Temporary Role",
		Description: "Please confirm the following temporary role assignment:",
		Color:       roleColor,
		Fields: []*discordgo.MessageEmbedField{
			{Name: "User", Value: "<@" + req.UserID + ">", Inline: true},
			{Name: "Role", Value: "<@&" + req.RoleID + ">", Inline: true},
			{Name: "Duration", Value: req.Duration.Label(), Inline: true},
			{Name: "Start Message", Value: req.StartMessage},
			{Name: "End Message", Value: req.EndMessage},
		},
		Footer: &discordgo.MessageEmbedFooter{Text: "Click Confirm to proceed or Cancel to abort"},
	}
}

func confirmButtons(token string) []discordgo.MessageComponent {
	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{Label: "Confirm", Style: discordgo.SuccessButton, CustomID: confirmPrefix + token},
				discordgo.Button{Label: "Cancel", Style: discordgo.DangerButton, CustomID: declinePrefix + token},
			},
		},
	}
}

// formatGrantList renders one page of grants, one line each, soonest
// deadline first.
func formatGrantList(records []model.GrantRecord, now time.Time, page int) (string, utils.Page) {
	p := utils.Paginate(len(records), page, listPageSize)
	if len(records) == 0 {
		return "No temporary roles are being tracked.", p
	}

	sorted := make([]model.GrantRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Deadline().Before(sorted[j].Deadline())
	})

	var b strings.Builder
	for _, r := range sorted[p.Start:p.End] {
		remaining := temprole.Remaining(r.StartTime, r.Duration, now)
		fmt.Fprintf(&b, "<@%s> · <@&%s> · %s left (<t:%d:R>)\n",
			r.UserID, r.RoleID, utils.FormatDuration(remaining), r.Deadline().Unix())
	}
	return strings.TrimRight(b.String(), "\n"), p
}

// listEmbed wraps a page of /temp_list. memberID is empty for the whole guild.
func listEmbed(records []model.GrantRecord, now time.Time, page int, memberID string) (*discordgo.MessageEmbed, []discordgo.MessageComponent) {
	body, p := formatGrantList(records, now, page)
	title := "Temporary Roles"
	var args []string
	if memberID != "" {
		title = "Temporary Roles of " + memberID
		args = append(args, memberID)
	}
	embed := &discordgo.MessageEmbed{
		Title:       title,
		Description: body,
		Color:       0x5865F2,
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("%d tracked · page %d/%d", len(records), p.Number, p.TotalPages),
		},
	}
	return embed, utils.CreatePaginationComponents(p.Number, p.TotalPages, listPagePrefix, args...)
}
