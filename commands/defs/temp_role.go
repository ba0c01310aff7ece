package defs

import (
	"role-keeper/model"

	"github.com/bwmarrin/discordgo"
)

func durationChoices() []*discordgo.ApplicationCommandOptionChoice {
	choices := make([]*discordgo.ApplicationCommandOptionChoice, 0, len(model.DurationClasses))
	for _, d := range model.DurationClasses {
		choices = append(choices, &discordgo.ApplicationCommandOptionChoice{
			Name:  d.Label(),
			Value: string(d),
		})
	}
	return choices
}

var manageRoles int64 = discordgo.PermissionManageRoles

var TempRole = &discordgo.ApplicationCommand{
	Name:        "temp",
	Description: "Give a temporary role to a user",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "临时身份组",
		discordgo.ChineseTW: "臨時身份組",
	},
	DescriptionLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "为用户添加一个限时身份组",
		discordgo.ChineseTW: "為用戶添加一個限時身份組",
	},
	DefaultMemberPermissions: &manageRoles,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "member",
			Description: "The member to give the role to",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionRole,
			Name:        "role",
			Description: "The role to give",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "duration",
			Description: "How long the member keeps the role",
			Required:    true,
			Choices:     durationChoices(),
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "start_message",
			Description: "Message sent to the member when the role is given",
			Required:    true,
			MaxLength:   1000,
		},
		{
			Type:        discordgo.ApplicationCommandOptionString,
			Name:        "end_message",
			Description: "Message sent to the member when the role expires",
			Required:    true,
			MaxLength:   1000,
		},
	},
}

var TempRoleCancel = &discordgo.ApplicationCommand{
	Name:        "temp_cancel",
	Description: "Remove a temporary role before it expires",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "撤销临时身份组",
		discordgo.ChineseTW: "撤銷臨時身份組",
	},
	DefaultMemberPermissions: &manageRoles,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "member",
			Description: "The member holding the role",
			Required:    true,
		},
		{
			Type:        discordgo.ApplicationCommandOptionRole,
			Name:        "role",
			Description: "The temporary role to remove",
			Required:    true,
		},
	},
}

var TempRoleList = &discordgo.ApplicationCommand{
	Name:        "temp_list",
	Description: "List tracked temporary roles in this server",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "临时身份组列表",
		discordgo.ChineseTW: "臨時身份組列表",
	},
	DefaultMemberPermissions: &manageRoles,
	Options: []*discordgo.ApplicationCommandOption{
		{
			Type:        discordgo.ApplicationCommandOptionUser,
			Name:        "member",
			Description: "Only show roles of this member",
			Required:    false,
		},
	},
}

var SystemInfo = &discordgo.ApplicationCommand{
	Name:        "sysinfo",
	Description: "Show host and scheduler status",
	NameLocalizations: &map[discordgo.Locale]string{
		discordgo.ChineseCN: "系统信息",
		discordgo.ChineseTW: "系統資訊",
	},
	DefaultMemberPermissions: &manageRoles,
}
