package main

import (
	"bytes"
	"strconv"

	"github.com/gookit/color"
	"github.com/gudfood/realtime/src/store"
	"github.com/olekukonko/tablewriter"
	"github.com/samber/lo"
)

func (c *cli) printChats() {
	s := c.svc.Store()
	chats := s.VisibleChats()
	if len(chats) == 0 {
		c.printf("no chats match %q\n", s.SearchTerm())
		return
	}
	c.mu.Lock()
	current := c.current
	c.mu.Unlock()

	rows := lo.Map(chats, func(ch store.Chat, _ int) []string {
		marker := ""
		if ch.ID == current {
			marker = "*"
		}
		return []string{
			marker,
			strconv.FormatInt(ch.ID, 10),
			lo.Ternary(ch.CounterpartName == "", "-", ch.CounterpartName),
			lo.Ternary(ch.IsAdministrator(), "admin", ""),
			strconv.Itoa(len(s.Messages(ch.ID))),
		}
	})
	c.printf("%s", renderTable([]string{"", "Chat", "Counterpart", "", "Messages"}, rows))
}

func (c *cli) printNotifications() {
	list := c.svc.Store().Notifications()
	if len(list) == 0 {
		c.printf("no notifications\n")
		return
	}
	rows := lo.Map(list, func(n store.Notification, _ int) []string {
		return []string{
			strconv.FormatInt(n.ID, 10),
			lo.Ternary(n.Read, "", "new"),
			n.CreatedAt.Local().Format("Jan 02 15:04"),
			n.Message,
		}
	})
	c.printf("%s", renderTable([]string{"ID", "", "Received", "Message"}, rows))
}

func renderTable(header []string, rows [][]string) string {
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader(header)
	table.SetAutoWrapText(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("  ")
	table.AppendBulk(rows)
	table.Render()
	return buf.String()
}

func formatMessage(m store.Message) string {
	who := color.FgCyan.Sprint(lo.Ternary(m.SenderID == "", "?", m.SenderID))
	return color.FgDarkGray.Sprint(m.CreatedAt.Local().Format("15:04")) + " " + who + ": " + m.Content
}

func formatAnnouncement(a store.Announcement) string {
	title := lo.Ternary(a.Title == "", "announcement", a.Title)
	return color.FgYellow.Sprintf("[%s] %s", title, a.Content)
}
