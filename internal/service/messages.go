package service

import (
	"fmt"
	"strings"

	"github.com/leettogether/leetstreak/internal/domain"
	"github.com/leettogether/leetstreak/internal/weekly"
)

const (
	keepAliveText   = "LeetTogether Bot is running! 🚀"
	dailyHeaderText = "📊 **Daily LeetCode Status Check**"
	nudgeText       = "⏰ **Friendly Reminder!**\n\n" +
		"Hey! You haven't solved any LeetCode problem today yet.\n" +
		"There's still time before midnight! 💪\n\n" +
		"Keep your streak alive! 🔥"
)

var medals = []string{"🥇", "🥈", "🥉"}

// KeepAliveText is the body served on the root path
func KeepAliveText() string {
	return keepAliveText
}

func mention(discordID string) string {
	return "<@" + discordID + ">"
}

func formatDailyStatus(discordID string, solved bool) string {
	if solved {
		return fmt.Sprintf("✅ %s is safe today!", mention(discordID))
	}
	return fmt.Sprintf("❌ %s did NOT solve today!", mention(discordID))
}

func formatNoData(discordID string) string {
	return fmt.Sprintf("⚠️ %s has no data yet, LeetCode could not be reached.", mention(discordID))
}

func formatStreak(discordID string, s domain.StreakState) string {
	if s.CurrentStreak > 0 {
		return fmt.Sprintf("✅ %s is on %d🔥 streak!", mention(discordID), s.CurrentStreak)
	}
	return fmt.Sprintf("Oops! %s forgot to solve today. The streak is now 0🔥", mention(discordID))
}

func rankLabel(i int) string {
	if i < len(medals) {
		return medals[i]
	}
	return fmt.Sprintf("%d.", i+1)
}

// formatWeeklyRecap renders the Sunday recap: the streak leaderboard and
// this week's unique problem counts
func formatWeeklyRecap(streaks []StreakEntry, week []weekly.Entry) string {
	var b strings.Builder
	b.WriteString("📊 **Weekly Recap**\n\n")
	b.WriteString("🏆 **Streak Leaderboard:**\n")
	for i, e := range streaks {
		fmt.Fprintf(&b, "%s %s — **%d**🔥 current | **%d**🔥 best | **%d** days total\n",
			rankLabel(i), mention(e.DiscordID),
			e.State.CurrentStreak, e.State.LongestStreak, e.State.TotalDaysSolved)
	}
	if len(streaks) > 0 {
		fmt.Fprintf(&b, "\n🌟 **Best Performer:** %s with a **%d** day streak!\n",
			mention(streaks[0].DiscordID), streaks[0].State.CurrentStreak)
	}
	if len(week) > 0 {
		b.WriteString("\n📈 **Problems This Week:**\n")
		for i, e := range week {
			fmt.Fprintf(&b, "%s %s — **%d** unique | %d submissions (🟢 %d 🟡 %d 🔴 %d)\n",
				rankLabel(i), mention(e.DiscordID),
				e.Record.UniqueProblems, e.Record.Submissions,
				e.Record.Easy, e.Record.Medium, e.Record.Hard)
		}
	}
	b.WriteString("\nKeep grinding! 💪")
	return b.String()
}

// formatWeekClosed renders the summary posted when a week rolls over
func formatWeekClosed(doc domain.WeeklyDocument, entries []weekly.Entry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🗓️ **Week of %s closed**\n", doc.WeekStart)
	if len(entries) == 0 {
		b.WriteString("\nNo problems solved this week.")
		return b.String()
	}
	b.WriteString("\n")
	for i, e := range entries {
		fmt.Fprintf(&b, "%s %s — **%d** unique problems\n", rankLabel(i), mention(e.DiscordID), e.Record.UniqueProblems)
	}
	return strings.TrimRight(b.String(), "\n")
}
