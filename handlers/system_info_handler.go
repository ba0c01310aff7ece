package handlers

import (
	"context"
	"fmt"
	"os"
	"role-keeper/bot"
	"role-keeper/utils"
	"runtime"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/host"
	"github.com/shirou/gopsutil/v3/mem"
	"go.uber.org/zap"
)

func SystemInfoHandler(s *discordgo.Session, i *discordgo.InteractionCreate, b *bot.Bot) {
	cfg := b.GetConfig()
	if i.Member == nil {
		return
	}
	level := utils.CheckPermission(utils.PermissionInput{
		UserID:       i.Member.User.ID,
		RoleIDs:      i.Member.Roles,
		Permissions:  i.Member.Permissions,
		AdminRoleID:  cfg.AdminRoleID,
		DeveloperIDs: cfg.DeveloperUserIDs,
	})
	if !utils.CanManageTempRoles(level) {
		if err := utils.SendErrorResponse(s, i, "You do not have permission to use this command."); err != nil {
			b.GetLogger().Warn("failed to send error response", zap.Error(err))
		}
		return
	}

	// Get CPU info
	cpuCount, _ := cpu.Counts(true)
	cpuUsage := "n/a"
	if cpuPercent, err := cpu.Percent(0, false); err == nil && len(cpuPercent) > 0 {
		cpuUsage = fmt.Sprintf("%.1f%%", cpuPercent[0])
	}

	memory := "n/a"
	if vm, err := mem.VirtualMemory(); err == nil {
		memory = fmt.Sprintf("%.1f%% (%d MB / %d MB)", vm.UsedPercent, vm.Used/1024/1024, vm.Total/1024/1024)
	}

	osVersion, kernel := "n/a", "n/a"
	if hostInfo, err := host.Info(); err == nil {
		osVersion = fmt.Sprintf("%s %s", hostInfo.Platform, hostInfo.PlatformVersion)
		kernel = hostInfo.KernelVersion
	}

	dbSize := "n/a"
	if info, err := os.Stat(cfg.DBPath); err == nil {
		dbSize = fmt.Sprintf("%.1f KB", float64(info.Size())/1024)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	stored := "n/a"
	if count, err := b.Store.Count(ctx); err == nil {
		stored = fmt.Sprintf("%d", count)
	}

	now := b.GetClock().Now()
	embed := &discordgo.MessageEmbed{
		Title: "System Info",
		Color: 0x5865F2, // Discord Blurple
		Fields: []*discordgo.MessageEmbedField{
			{Name: "💻 OS", Value: osVersion, Inline: true},
			{Name: "🔧 Kernel", Value: kernel, Inline: true},
			{Name: "🐹 Go", Value: runtime.Version(), Inline: true},
			{Name: "🔼 CPUs", Value: fmt.Sprintf("%d", cpuCount), Inline: true},
			{Name: "🔥 CPU Usage", Value: cpuUsage, Inline: true},
			{Name: "🧠 Memory", Value: memory, Inline: true},
			{Name: "🗃️ Database", Value: dbSize, Inline: true},
			{Name: "⏱️ WebSocket Latency", Value: s.HeartbeatLatency().String(), Inline: true},
			{Name: "🚀 Goroutines", Value: fmt.Sprintf("%d", runtime.NumGoroutine()), Inline: true},
			{Name: "📌 Stored Grants", Value: stored, Inline: true},
			{Name: "⏳ Active Timers", Value: fmt.Sprintf("%d", b.Grants.ActiveCount()), Inline: true},
			{Name: "🕒 Uptime", Value: utils.FormatDuration(now.Sub(b.StartedAt)), Inline: true},
		},
		Footer: &discordgo.MessageEmbedFooter{
			Text: fmt.Sprintf("System monitor · %s UTC", now.UTC().Format("15:04")),
		},
	}

	if err := utils.SendEphemeralEmbed(s, i, embed, nil); err != nil {
		b.GetLogger().Warn("failed to send system info", zap.Error(err))
	}
}
