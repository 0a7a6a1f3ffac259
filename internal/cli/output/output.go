package output

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/cli/api"
	"github.com/Shelivery-Sharing-Deliveries/Shelivery-sub001/internal/lifecycle"
)

// Stdout is where every printer writes.
var Stdout io.Writer = os.Stdout

func table() *tabwriter.Writer {
	return tabwriter.NewWriter(Stdout, 0, 0, 2, ' ', 0)
}

// JSON prints v as indented JSON.
func JSON(v interface{}) {
	enc := json.NewEncoder(Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

// UserInfo prints user details.
func UserInfo(u api.User) {
	w := table()
	fmt.Fprintf(w, "Email:\t%s\n", u.Email)
	fmt.Fprintf(w, "Name:\t%s\n", u.DisplayName())
	fmt.Fprintf(w, "ID:\t%s\n", u.ID)
	if u.Dormitory != nil {
		fmt.Fprintf(w, "Dormitory:\t%s\n", u.Dormitory.Name)
	} else if u.DormitoryID != nil {
		fmt.Fprintf(w, "Dormitory:\t%s\n", *u.DormitoryID)
	}
	if u.FavoriteStore != nil {
		fmt.Fprintf(w, "Favorite store:\t%s\n", *u.FavoriteStore)
	}
	w.Flush()
}

// BasketTable prints one section of the dashboard.
func BasketTable(title string, baskets []api.Basket) {
	fmt.Fprintf(Stdout, "%s (%d)\n", title, len(baskets))
	if len(baskets) == 0 {
		fmt.Fprintln(Stdout, "  No baskets.")
		return
	}
	w := table()
	fmt.Fprintln(w, "ID\tSHOP\tAMOUNT\tSTATUS\tCREATED")
	for _, b := range baskets {
		shop := b.ShopID
		if b.Shop != nil {
			shop = b.Shop.Name
		}
		fmt.Fprintf(w, "%s\t%s\t%s CHF\t%s\t%s\n", b.ID, shop, lifecycle.FormatCHF(b.Amount), b.Status, RelativeTime(b.CreatedAt))
	}
	w.Flush()
}

// PoolDetail prints a pool and its progress towards the minimum.
func PoolDetail(p api.Pool, progress lifecycle.Progress) {
	w := table()
	fmt.Fprintf(w, "Pool:\t%s\n", p.ID)
	if p.Shop != nil {
		fmt.Fprintf(w, "Shop:\t%s\n", p.Shop.Name)
	}
	if p.Location != nil {
		fmt.Fprintf(w, "Location:\t%s\n", p.Location.Name)
	}
	fmt.Fprintf(w, "Collected:\t%s / %s CHF\n", lifecycle.FormatCHF(p.CurrentAmount), lifecycle.FormatCHF(p.MinAmount))
	fmt.Fprintf(w, "Progress:\t%s %.0f%%\n", ProgressBar(progress.Percentage, 20), progress.Percentage)
	if progress.Filled {
		fmt.Fprintf(w, "Status:\tfilled\n")
	} else {
		fmt.Fprintf(w, "Remaining:\t%s CHF\n", lifecycle.FormatCHF(progress.Remaining))
	}
	if p.ChatroomID != nil {
		fmt.Fprintf(w, "Chatroom:\t%s\n", *p.ChatroomID)
	}
	w.Flush()
}

// ProgressBar renders pct (0-100) as a bar of the given width.
func ProgressBar(pct float64, width int) string {
	filled := int(pct / 100 * float64(width))
	if filled < 0 {
		filled = 0
	}
	if filled > width {
		filled = width
	}
	bar := make([]byte, 0, width+2)
	bar = append(bar, '[')
	for i := 0; i < width; i++ {
		if i < filled {
			bar = append(bar, '#')
		} else {
			bar = append(bar, '.')
		}
	}
	return string(append(bar, ']'))
}

// Roster is a member with the status line already derived.
type Roster struct {
	Name    string
	UserID  string
	IsAdmin bool
	Status  string
}

// ChatroomDetail prints the chatroom header and its members.
func ChatroomDetail(c api.Chatroom, members []Roster) {
	w := table()
	fmt.Fprintf(w, "Chatroom:\t%s\n", c.ID)
	fmt.Fprintf(w, "State:\t%s\n", c.State)
	if c.Pool != nil && c.Pool.Shop != nil {
		fmt.Fprintf(w, "Shop:\t%s\n", c.Pool.Shop.Name)
	}
	if !c.ExpireAt.IsZero() {
		fmt.Fprintf(w, "Expires:\t%s\n", c.ExpireAt.Format(time.RFC3339))
	}
	w.Flush()

	fmt.Fprintln(Stdout)
	w = table()
	fmt.Fprintln(w, "MEMBER\tID\tSTATUS")
	for _, m := range members {
		name := m.Name
		if m.IsAdmin {
			name += " (admin)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", name, m.UserID, m.Status)
	}
	w.Flush()
}

// MessageLine prints one chat message.
func MessageLine(m api.Message) {
	who := m.UserID
	if m.User != nil {
		who = m.User.DisplayName()
	}
	content := m.Content
	if m.Type != "" && m.Type != "text" {
		content = fmt.Sprintf("[%s] %s", m.Type, m.Content)
	}
	fmt.Fprintf(Stdout, "%s  %s: %s\n", m.SentAt.Local().Format("15:04"), who, content)
}

// NotificationLine prints one banner.
func NotificationLine(n api.Notification) {
	fmt.Fprintf(Stdout, "[%s] %s: %s\n", n.Type, n.Title, n.Message)
}

// InvitationDetail prints a freshly created invitation.
func InvitationDetail(i api.Invitation) {
	w := table()
	fmt.Fprintf(w, "Code:\t%s\n", i.Code)
	fmt.Fprintf(w, "Expires:\t%s\n", i.ExpiresAt.Format(time.RFC3339))
	w.Flush()
}

// RelativeTime formats a timestamp relative to now (e.g. "2h ago", "3d ago").
func RelativeTime(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%dm ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(d.Hours()))
	case d < 30*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(d.Hours()/24))
	default:
		return t.Format("2006-01-02")
	}
}
