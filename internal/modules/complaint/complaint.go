// Package complaint lets users file complaints against a group. Each complaint
// becomes a numbered thread assigned to one of the group's admins, who can
// reply to it and resolve it.
package complaint

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/nk521/Complaint-Bot/pkg/bot"
	"github.com/nk521/Complaint-Bot/pkg/logger"
	"github.com/nk521/Complaint-Bot/pkg/models"
	"github.com/nk521/Complaint-Bot/pkg/transport"
)

// Name is the module name
const Name = "Complaint"

// Module is the complaint module
type Module struct {
	bot   *bot.Bot
	store Store
	now   func() time.Time
}

// Factory builds the complaint module on top of store
func Factory(store Store) bot.ModuleFactory {
	return bot.ModuleFactory{
		Name: Name,
		New: func(b *bot.Bot) bot.Module {
			return &Module{bot: b, store: store, now: time.Now}
		},
	}
}

// Name implements bot.Module
func (m *Module) Name() string { return Name }

// Commands implements bot.Module
func (m *Module) Commands() []*bot.Command {
	return []*bot.Command{
		bot.NewCommand("list", "List all the complaints and their status so far.", m.list).WithAliases("ls"),
		bot.NewParsedTextCommand("new", "Register a new complaint for a given group.", m.newThread),
		bot.NewVariadicCommand("see", "See details for a certain complaint.", m.see),
		bot.NewParsedTextCommand("reply", "Add a message to a complaint.", m.reply),
		bot.NewVariadicCommand("resolve", "Mark a complaint as resolved.", m.resolve),
		bot.NewVariadicCommand("hide", "Hide a complaint from a user.", m.hide),
		bot.NewVariadicCommand("addgroup", "Register this chat as a group complaints can be filed against.", m.addGroup),
		bot.NewVariadicCommand("addadmin", "Make a user an admin of a group.", m.addAdmin),
		bot.NewParsedTextCommand("block", "Stop a user from using the bot.", m.block),
		bot.NewVariadicCommand("unblock", "Allow a blocked user to use the bot again.", m.unblock),
	}
}

// Listeners implements bot.Module
func (m *Module) Listeners() []bot.EventHandler { return nil }

// caller is the sender of a command together with their roles
type caller struct {
	user  *models.User
	roles []*models.Admin
	owner bool
}

func (c *caller) superuser() bool {
	return c.owner || c.user.IsSuperuser
}

func (c *caller) handles(t *models.Thread) bool {
	return slices.ContainsFunc(c.roles, func(a *models.Admin) bool { return a.ID == t.AssignedTo })
}

func (m *Module) caller(ctx context.Context, msg *transport.Message) (*caller, error) {
	u, err := m.store.EnsureUser(ctx, msg.Sender.ID)
	if err != nil {
		return nil, fmt.Errorf("load user %s: %w", msg.Sender.ID, err)
	}
	roles, err := m.store.AdminRoles(ctx, msg.Sender.ID)
	if err != nil {
		return nil, fmt.Errorf("load admin roles of %s: %w", msg.Sender.ID, err)
	}
	return &caller{user: u, roles: roles, owner: m.bot.IsOwner(msg.Sender.ID)}, nil
}

// visible reports whether c may read t
func (m *Module) visible(ctx context.Context, c *caller, t *models.Thread) (bool, error) {
	if c.superuser() {
		return true, nil
	}
	if t.ByUserID != c.user.ID && !c.handles(t) {
		return false, nil
	}
	hidden, err := m.store.IsHidden(ctx, t.ID, c.user.ID)
	return !hidden, err
}

func (m *Module) usage(args string) string {
	return fmt.Sprintf("Usage: `%s%s`", m.bot.Prefix(), args)
}

func (m *Module) list(ctx context.Context, msg *transport.Message) (string, error) {
	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}

	threads, err := m.store.ThreadsBy(ctx, c.user.ID)
	if err != nil {
		return "", err
	}

	roleIDs := make([]string, 0, len(c.roles))
	for _, r := range c.roles {
		roleIDs = append(roleIDs, r.ID)
	}
	assigned, err := m.store.ThreadsAssigned(ctx, roleIDs)
	if err != nil {
		return "", err
	}

	var lines []string
	for _, t := range threads {
		lines = append(lines, m.threadLine(ctx, t))
	}
	if len(assigned) > 0 {
		var handled []string
		for _, t := range assigned {
			hidden, err := m.store.IsHidden(ctx, t.ID, c.user.ID)
			if err != nil {
				return "", err
			}
			if !hidden {
				handled = append(handled, m.threadLine(ctx, t))
			}
		}
		if len(handled) > 0 {
			header := "**Assigned to you:**"
			if len(lines) > 0 {
				header = "\n" + header
			}
			lines = append(lines, header)
			lines = append(lines, handled...)
		}
	}

	if len(lines) == 0 {
		return "You have no threads yet!", nil
	}
	return strings.Join(lines, "\n"), nil
}

func (m *Module) threadLine(ctx context.Context, t *models.Thread) string {
	return fmt.Sprintf("**Thread:** #%d [%s] %s", t.ID, t.Status, m.groupName(ctx, t.ForGroupID))
}

func (m *Module) groupName(ctx context.Context, id string) string {
	g, err := m.store.Group(ctx, id)
	if err != nil || g == nil {
		return id
	}
	return g.Identifier
}

func (m *Module) newThread(ctx context.Context, msg *transport.Message, args string) (string, error) {
	name, text := splitFirst(args)
	if name == "" || text == "" {
		return m.usage("new <group> <complaint>"), nil
	}

	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}

	group, err := m.store.GroupByIdentifier(ctx, name)
	if err != nil {
		return "", err
	}
	if group == nil {
		return fmt.Sprintf("No group called `%s`.", name), nil
	}

	admin, err := m.pickAdmin(ctx, group, c.user.ID)
	if err != nil {
		return "", err
	}
	if admin == nil {
		return fmt.Sprintf("Group `%s` has nobody to handle complaints yet.", group.Identifier), nil
	}

	now := m.now().UTC()
	t := &models.Thread{
		ByUserID:   c.user.ID,
		ForGroupID: group.ID,
		AssignedTo: admin.ID,
		Status:     models.ThreadOpen,
		CreatedAt:  now,
	}
	first := &models.Message{AuthorID: c.user.ID, Text: text, CreatedAt: now}
	if err := m.store.CreateThread(ctx, t, first); err != nil {
		return "", fmt.Errorf("create thread: %w", err)
	}

	m.notify(ctx, admin.UserID, fmt.Sprintf("📬 New complaint #%d for `%s`:\n\n%s", t.ID, group.Identifier, text))
	return fmt.Sprintf("Complaint #%d registered for `%s`.", t.ID, group.Identifier), nil
}

// pickAdmin returns the admin of g with the fewest open threads, skipping the complainant
func (m *Module) pickAdmin(ctx context.Context, g *models.Group, complainant string) (*models.Admin, error) {
	admins, err := m.store.AdminsOf(ctx, g.ID)
	if err != nil {
		return nil, err
	}

	var (
		best     *models.Admin
		bestLoad int
	)
	for _, a := range admins {
		if a.UserID == complainant {
			continue
		}
		threads, err := m.store.ThreadsAssigned(ctx, []string{a.ID})
		if err != nil {
			return nil, err
		}
		load := 0
		for _, t := range threads {
			if t.Status == models.ThreadOpen {
				load++
			}
		}
		if best == nil || load < bestLoad {
			best, bestLoad = a, load
		}
	}
	return best, nil
}

// thread resolves a thread id argument the caller may read
func (m *Module) thread(ctx context.Context, c *caller, arg string) (*models.Thread, string, error) {
	id, err := strconv.ParseInt(strings.TrimPrefix(arg, "#"), 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Sprintf("`%s` is not a thread number.", arg), nil
	}

	t, err := m.store.Thread(ctx, id)
	if err != nil {
		return nil, "", err
	}
	notFound := fmt.Sprintf("Thread #%d not found.", id)
	if t == nil {
		return nil, notFound, nil
	}

	ok, err := m.visible(ctx, c, t)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return nil, notFound, nil
	}
	return t, "", nil
}

func (m *Module) see(ctx context.Context, msg *transport.Message, args ...string) (string, error) {
	if len(args) != 1 {
		return m.usage("see <thread>"), nil
	}

	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}
	t, reply, err := m.thread(ctx, c, args[0])
	if t == nil {
		return reply, err
	}

	messages, err := m.store.Messages(ctx, t.ID)
	if err != nil {
		return "", err
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "**Thread #%d** [%s]\n**Group:** %s\n**Opened:** %s", t.ID, t.Status, m.groupName(ctx, t.ForGroupID), t.CreatedAt.Format(time.DateTime))
	if t.ResolvedAt != nil {
		fmt.Fprintf(&sb, "\n**Resolved:** %s", t.ResolvedAt.Format(time.DateTime))
	}
	sb.WriteString("\n")
	for _, mm := range messages {
		author := "admin"
		if mm.AuthorID == t.ByUserID {
			author = "complainant"
		}
		fmt.Fprintf(&sb, "\n**%s**: %s", author, mm.Text)
	}
	return sb.String(), nil
}

func (m *Module) reply(ctx context.Context, msg *transport.Message, text string) (string, error) {
	arg, body := splitFirst(text)
	if arg == "" || body == "" {
		return m.usage("reply <thread> <message>"), nil
	}

	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}
	t, reply, err := m.thread(ctx, c, arg)
	if t == nil {
		return reply, err
	}
	if t.Status == models.ThreadResolved {
		return fmt.Sprintf("Thread #%d is already resolved.", t.ID), nil
	}

	if err := m.store.AddMessage(ctx, &models.Message{ThreadID: t.ID, AuthorID: c.user.ID, Text: body, CreatedAt: m.now().UTC()}); err != nil {
		return "", err
	}

	if c.user.ID == t.ByUserID {
		if admin, err := m.store.Admin(ctx, t.AssignedTo); err == nil && admin != nil {
			m.notify(ctx, admin.UserID, fmt.Sprintf("💬 New reply on complaint #%d:\n\n%s", t.ID, body))
		}
	} else {
		m.notify(ctx, t.ByUserID, fmt.Sprintf("💬 Your complaint #%d got a reply:\n\n%s", t.ID, body))
	}
	return fmt.Sprintf("Reply added to thread #%d.", t.ID), nil
}

func (m *Module) resolve(ctx context.Context, msg *transport.Message, args ...string) (string, error) {
	if len(args) != 1 {
		return m.usage("resolve <thread>"), nil
	}

	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}
	t, reply, err := m.thread(ctx, c, args[0])
	if t == nil {
		return reply, err
	}
	if !c.handles(t) && !c.superuser() && t.ByUserID != c.user.ID {
		return fmt.Sprintf("You can't resolve thread #%d.", t.ID), nil
	}
	if t.Status == models.ThreadResolved {
		return fmt.Sprintf("Thread #%d is already resolved.", t.ID), nil
	}

	if err := m.store.SetThreadStatus(ctx, t.ID, models.ThreadResolved, m.now().UTC()); err != nil {
		return "", err
	}
	if t.ByUserID != c.user.ID {
		m.notify(ctx, t.ByUserID, fmt.Sprintf("✅ Your complaint #%d was marked as resolved.", t.ID))
	}
	return fmt.Sprintf("Thread #%d marked as resolved.", t.ID), nil
}

func (m *Module) hide(ctx context.Context, msg *transport.Message, args ...string) (string, error) {
	if len(args) != 2 {
		return m.usage("hide <thread> <user>"), nil
	}

	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}
	t, reply, err := m.thread(ctx, c, args[0])
	if t == nil {
		return reply, err
	}
	if !c.handles(t) && !c.superuser() {
		return fmt.Sprintf("You can't hide thread #%d.", t.ID), nil
	}
	if args[1] == t.ByUserID {
		return "A complaint can't be hidden from the user who filed it.", nil
	}

	if err := m.store.Hide(ctx, t.ID, args[1]); err != nil {
		return "", err
	}
	return fmt.Sprintf("Thread #%d is now hidden from %s.", t.ID, args[1]), nil
}

func (m *Module) requireSuperuser(ctx context.Context, msg *transport.Message) (string, error) {
	c, err := m.caller(ctx, msg)
	if err != nil {
		return "", err
	}
	if !c.superuser() {
		return "❌ Only superusers can do that.", nil
	}
	return "", nil
}

func (m *Module) addGroup(ctx context.Context, msg *transport.Message, args ...string) (string, error) {
	if len(args) != 1 {
		return m.usage("addgroup <name>"), nil
	}
	if denied, err := m.requireSuperuser(ctx, msg); denied != "" || err != nil {
		return denied, err
	}

	existing, err := m.store.GroupByIdentifier(ctx, args[0])
	if err != nil {
		return "", err
	}
	if existing != nil && existing.ID != msg.ChatID {
		return fmt.Sprintf("The name `%s` is already taken.", args[0]), nil
	}

	if err := m.store.AddGroup(ctx, &models.Group{ID: msg.ChatID, Identifier: args[0]}); err != nil {
		return "", err
	}
	return fmt.Sprintf("This chat is now the group `%s`.", args[0]), nil
}

func (m *Module) addAdmin(ctx context.Context, msg *transport.Message, args ...string) (string, error) {
	if len(args) != 2 {
		return m.usage("addadmin <group> <user>"), nil
	}
	if denied, err := m.requireSuperuser(ctx, msg); denied != "" || err != nil {
		return denied, err
	}

	name := args[0]
	group, err := m.store.GroupByIdentifier(ctx, name)
	if err != nil {
		return "", err
	}
	if group == nil {
		return fmt.Sprintf("No group called `%s`.", name), nil
	}

	if _, err := m.store.EnsureUser(ctx, args[1]); err != nil {
		return "", err
	}
	if err := m.store.AddAdmin(ctx, &models.Admin{UserID: args[1], GroupID: group.ID}); err != nil {
		return "", err
	}
	return fmt.Sprintf("%s is now an admin of `%s`.", args[1], group.Identifier), nil
}

func (m *Module) block(ctx context.Context, msg *transport.Message, text string) (string, error) {
	user, reason := splitFirst(text)
	if user == "" {
		return m.usage("block <user> [reason]"), nil
	}
	if denied, err := m.requireSuperuser(ctx, msg); denied != "" || err != nil {
		return denied, err
	}
	if m.bot.IsOwner(user) || user == msg.Sender.ID {
		return "That user can't be blocked.", nil
	}

	reason = cmp.Or(reason, "No reason given")
	if err := m.store.SetBlacklisted(ctx, user, true, reason); err != nil {
		return "", err
	}
	logger.Info(fmt.Sprintf("User %s blocked by %s: %s", user, msg.Sender.ID, reason), "Complaint")
	return fmt.Sprintf("🔨 %s is blocked. Reason: %s", user, reason), nil
}

func (m *Module) unblock(ctx context.Context, msg *transport.Message, args ...string) (string, error) {
	if len(args) != 1 {
		return m.usage("unblock <user>"), nil
	}
	if denied, err := m.requireSuperuser(ctx, msg); denied != "" || err != nil {
		return denied, err
	}

	if err := m.store.SetBlacklisted(ctx, args[0], false, ""); err != nil {
		return "", err
	}
	logger.Info(fmt.Sprintf("User %s unblocked by %s", args[0], msg.Sender.ID), "Complaint")
	return fmt.Sprintf("%s is no longer blocked.", args[0]), nil
}

// notify messages a user directly; failures are only logged
func (m *Module) notify(ctx context.Context, userID, text string) {
	if err := m.bot.Send(ctx, userID, text); err != nil {
		logger.Warn(fmt.Sprintf("Could not notify %s: %v", userID, err), "Complaint")
	}
}

// splitFirst splits off the first whitespace-separated token of s
func splitFirst(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexFunc(s, unicode.IsSpace)
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i:])
}
