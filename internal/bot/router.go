// Package bot routes incoming chat commands to the catalog and the daily
// selector and writes the replies back through the transport adapter.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"namebot/internal/catalog"
	"namebot/internal/selector"
	kit "namebot/internal/transport"
	logx "namebot/pkg/logx"
)

// ErrInvalidFormat rejects /add arguments that are not exactly two words.
var ErrInvalidFormat = errors.New("name must be exactly two words")

type Config struct {
	// Owners may run maintenance commands like /export. Empty means no gate.
	Owners []int64

	// SeedPath is where /export writes the name list.
	SeedPath string

	// SelfName is the designated name shown in /help.
	SelfName string

	// BroadcastAt is the announcement time shown by /help, e.g. "15:30".
	BroadcastAt string
}

type Router struct {
	store  *catalog.Store
	sel    *selector.Selector
	sender kit.Adapter
	log    logx.Logger

	owners      map[int64]struct{}
	seedPath    string
	selfName    string
	broadcastAt string
}

func New(cfg Config, store *catalog.Store, sel *selector.Selector, sender kit.Adapter, log logx.Logger) *Router {
	if log.IsZero() {
		log = logx.Nop()
	}
	owners := make(map[int64]struct{}, len(cfg.Owners))
	for _, id := range cfg.Owners {
		owners[id] = struct{}{}
	}
	return &Router{
		store:       store,
		sel:         sel,
		sender:      sender,
		log:         log,
		owners:      owners,
		seedPath:    cfg.SeedPath,
		selfName:    cfg.SelfName,
		broadcastAt: cfg.BroadcastAt,
	}
}

// DispatchLoop consumes adapter updates until ctx is canceled or the channel
// closes. Each update is handled inline; handlers are quick (one or two
// sqlite statements) so a worker pool would buy nothing here.
func (r *Router) DispatchLoop(ctx context.Context, updates <-chan kit.Update) error {
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case u, ok := <-updates:
			if !ok {
				return nil
			}
			r.handle(ctx, u)
		}
	}
}

func (r *Router) handle(ctx context.Context, u kit.Update) {
	m := u.Message
	if m == nil || m.Text == "" {
		return
	}
	cmd, args := parseCommand(m.Text)
	if cmd == "" {
		return
	}

	r.log.Debug("command received",
		logx.String("cmd", cmd), logx.Int64("chat_id", m.ChatID), logx.Int64("from", m.FromID))

	switch cmd {
	case "get":
		r.handleGet(ctx, m)
	case "add":
		r.handleAdd(ctx, m, args)
	case "list", "db":
		r.handleList(ctx, m)
	case "export":
		r.handleExport(ctx, m)
	case "help", "start":
		r.handleHelp(ctx, m)
	}
}

// parseCommand splits "/add@somebot Ivan Petrov" into ("add", "Ivan Petrov").
// Returns an empty command for plain text.
func parseCommand(text string) (cmd, args string) {
	text = strings.TrimSpace(text)
	if !strings.HasPrefix(text, "/") {
		return "", ""
	}
	head := text[1:]
	if i := strings.IndexFunc(head, func(r rune) bool { return r == ' ' || r == '\t' || r == '\n' }); i >= 0 {
		head, args = head[:i], strings.TrimSpace(head[i+1:])
	}
	// Group chats address commands as /cmd@botname.
	if i := strings.IndexByte(head, '@'); i >= 0 {
		head = head[:i]
	}
	return strings.ToLower(head), args
}

func (r *Router) handleGet(ctx context.Context, m *kit.Message) {
	res := r.sel.Today(ctx)
	r.reply(ctx, m, res.Text)
}

// parseName validates and canonicalizes /add input: exactly two words, each
// capitalized, joined by a single space.
func parseName(args string) (string, error) {
	words := strings.Fields(args)
	if len(words) != 2 {
		return "", ErrInvalidFormat
	}
	return catalog.CapitalizeWord(words[0]) + " " + catalog.CapitalizeWord(words[1]), nil
}

func (r *Router) handleAdd(ctx context.Context, m *kit.Message, args string) {
	name, err := parseName(args)
	if err != nil {
		r.reply(ctx, m, "Некорректное имя. Имя должно состоять из двух слов.")
		return
	}

	_, err = r.store.Insert(ctx, name)
	switch {
	case err == nil:
		r.reply(ctx, m, fmt.Sprintf("Добавлено новое имя: **%s**!", name))
	case errors.Is(err, catalog.ErrDuplicate):
		existing, ferr := r.store.FindByKey(ctx, catalog.Normalize(name))
		if ferr != nil {
			r.log.Error("duplicate lookup failed", logx.String("name", name), logx.Err(ferr))
			r.reply(ctx, m, fmt.Sprintf("Такое имя уже существует: **%s**", name))
			return
		}
		r.reply(ctx, m, fmt.Sprintf("Такое имя уже существует: **%s**", existing.DisplayName))
	default:
		r.log.Error("insert failed", logx.String("name", name), logx.Err(err))
		r.reply(ctx, m, "Произошла ошибка при добавлении имени.")
	}
}

func (r *Router) handleList(ctx context.Context, m *kit.Message) {
	entries, err := r.store.ListAll(ctx, catalog.OrderByID)
	if err != nil {
		r.log.Error("list failed", logx.Err(err))
		r.reply(ctx, m, "Произошла ошибка при получении списка имен.")
		return
	}
	if len(entries) == 0 {
		r.reply(ctx, m, "База данных пуста.")
		return
	}

	var b strings.Builder
	fmt.Fprintf(&b, "**Список всех имен (%d):**\n\n", len(entries))
	for _, e := range entries {
		fmt.Fprintf(&b, "%d. %s\n", e.ID, e.DisplayName)
	}
	fmt.Fprintf(&b, "\nВсего имен: **%d**", len(entries))
	r.reply(ctx, m, b.String())
}

func (r *Router) handleExport(ctx context.Context, m *kit.Message) {
	if len(r.owners) > 0 {
		if _, ok := r.owners[m.FromID]; !ok {
			r.reply(ctx, m, "Эта команда доступна только владельцу.")
			return
		}
	}
	n, err := catalog.ExportSeedFile(ctx, r.store, r.seedPath, r.log)
	if err != nil {
		r.log.Error("export failed", logx.Err(err))
		r.reply(ctx, m, "Произошла ошибка при сохранении списка.")
		return
	}
	r.reply(ctx, m, fmt.Sprintf("Список сохранен: **%d** имен.", n))
}

func (r *Router) handleHelp(ctx context.Context, m *kit.Message) {
	var b strings.Builder
	b.WriteString("**Команды:**\n")
	if r.selfName != "" {
		fmt.Fprintf(&b, "/get - кто сегодня %s\n", r.selfName)
	} else {
		b.WriteString("/get - имя величайшего на сегодня\n")
	}
	b.WriteString("/add Имя Фамилия - добавить новое имя\n")
	b.WriteString("/list - список всех имен\n")
	b.WriteString("/export - сохранить список имен в файл\n")
	if r.broadcastAt != "" {
		fmt.Fprintf(&b, "\nКаждый будний день в %s я объявляю имя сам.", r.broadcastAt)
	}
	r.reply(ctx, m, b.String())
}

func (r *Router) reply(ctx context.Context, m *kit.Message, text string) {
	to := kit.ChatTarget{ChatID: m.ChatID, ThreadID: m.ThreadID}
	_, err := r.sender.SendText(ctx, to, text, &kit.SendOptions{ParseMode: "Markdown", DisablePreview: true})
	if err != nil {
		r.log.Warn("reply failed", logx.Int64("chat_id", m.ChatID), logx.Err(err))
	}
}
