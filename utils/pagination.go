package utils

import (
	"strconv"
	"strings"

	"github.com/bwmarrin/discordgo"
	"github.com/cockroachdb/errors"
)

// Page bounds a slice of total items to one page. Page numbers start at 1.
type Page struct {
	Number     int
	TotalPages int
	Start, End int
}

// Paginate clamps page into range and returns the slice bounds for it.
func Paginate(total, page, size int) Page {
	totalPages := (total + size - 1) / size
	if totalPages < 1 {
		totalPages = 1
	}
	if page < 1 {
		page = 1
	}
	if page > totalPages {
		page = totalPages
	}
	start := (page - 1) * size
	end := start + size
	if end > total {
		end = total
	}
	return Page{Number: page, TotalPages: totalPages, Start: start, End: end}
}

// CreatePaginationComponents creates Previous / Next buttons whose custom IDs
// are "prefix:page[:arg...]". It returns nil for a single page.
func CreatePaginationComponents(currentPage, totalPages int, customIDPrefix string, args ...string) []discordgo.MessageComponent {
	if totalPages <= 1 {
		return nil
	}

	buttonID := func(page int) string {
		return strings.Join(append([]string{customIDPrefix, strconv.Itoa(page)}, args...), ":")
	}

	return []discordgo.MessageComponent{
		discordgo.ActionsRow{
			Components: []discordgo.MessageComponent{
				discordgo.Button{
					Label:    "Previous",
					Style:    discordgo.PrimaryButton,
					Disabled: currentPage <= 1,
					CustomID: buttonID(currentPage - 1),
				},
				discordgo.Button{
					Label:    "Next",
					Style:    discordgo.PrimaryButton,
					Disabled: currentPage >= totalPages,
					CustomID: buttonID(currentPage + 1),
				},
			},
		},
	}
}

// ParsePaginationID is the inverse of the custom IDs built by
// CreatePaginationComponents.
func ParsePaginationID(customID, customIDPrefix string) (int, []string, error) {
	rest, ok := strings.CutPrefix(customID, customIDPrefix+":")
	if !ok {
		return 0, nil, errors.Newf("custom id %q does not start with %q", customID, customIDPrefix)
	}
	parts := strings.Split(rest, ":")
	page, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, nil, errors.Wrapf(err, "invalid page in custom id %q", customID)
	}
	return page, parts[1:], nil
}
