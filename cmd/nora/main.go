package main

import (
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/config"
	"github.com/noralunch/nora/pkg/identity"
	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/menu"
	"github.com/noralunch/nora/pkg/messages"
	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/order"
	"github.com/noralunch/nora/pkg/queue"
	"github.com/noralunch/nora/pkg/reminder"
	"github.com/noralunch/nora/pkg/roster"
	"github.com/noralunch/nora/pkg/scheduler"
	"github.com/noralunch/nora/pkg/storage"
	"github.com/noralunch/nora/pkg/telegram"
)

func main() {
	log := logger.Global
	log.Info("Starting nora lunch bot...")

	cfg, err := config.LoadFromEnv()
	if err != nil {
		log.Error("Failed to load configuration: %v", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.DataDir)
	if err != nil {
		log.Error("Failed to initialize storage: %v", err)
		os.Exit(1)
	}
	defer store.Close()

	store.StartGCRoutine(10 * time.Minute)

	// The identity record holds the credential every gateway call uses.
	// Seed it from the environment on first boot.
	identityStore := identity.New(store)
	id, err := identityStore.Load()
	if err != nil {
		log.Error("Failed to load identity: %v", err)
		os.Exit(1)
	}
	if id.AccessToken == "" {
		id.AccessToken = cfg.BotToken
		if err := identityStore.Replace(id); err != nil {
			log.Error("Failed to seed identity: %v", err)
			os.Exit(1)
		}
	}

	gateway, err := telegram.New(id.AccessToken)
	if err != nil {
		log.Error("Failed to initialize Telegram gateway: %v", err)
		os.Exit(1)
	}

	now := func() time.Time { return time.Now().In(cfg.Location) }

	tasks := queue.New(64)
	tasks.Start()
	defer tasks.Stop()

	registry := roster.New(store, cfg.OnlyLocals, cfg.Locale)
	renderer := messages.New(cfg.ExternalURL)
	dispatcher := reminder.New(store, gateway, renderer, cfg.UseReminders, now)
	menuService := menu.New(store, registry, dispatcher, tasks, cfg.CutoffHour, cfg.NotifyHour, now)
	orderService := order.New(store, dispatcher, tasks, cfg.CutoffHour, now)

	dailyScheduler := scheduler.New(dispatcher, tasks, cfg.NotifyHour, now)
	dailyScheduler.Start()
	defer dailyScheduler.Stop()

	isOperator := func(userID int64) bool {
		id, err := identityStore.Load()
		if err != nil {
			log.Error("Failed to load identity: %v", err)
			return false
		}
		return id.UserID == strconv.FormatInt(userID, 10)
	}

	commandHandlers := map[string]telegram.CommandHandler{
		"start": func(message *tgbotapi.Message) {
			u := models.EligibleUser{
				ID:          strconv.FormatInt(message.From.ID, 10),
				DisplayName: displayName(message.From),
				Locale:      message.From.LanguageCode,
				Bot:         message.From.IsBot,
			}
			if err := registry.Register(u); err != nil {
				log.Error("Failed to register %s: %v", u.ID, err)
				gateway.Reply(message.Chat.ID, "😢 Sorry, I couldn't sign you up. Please try again later.")
				return
			}
			gateway.Reply(message.Chat.ID, "👋 Welcome! You'll get the lunch menu here every day. Reply with the option you want, or prefix a message with \"note:\" to add notes to your order.")
		},
		"claim": func(message *tgbotapi.Message) {
			current, err := identityStore.Load()
			if err != nil {
				log.Error("Failed to load identity: %v", err)
				return
			}
			userID := strconv.FormatInt(message.From.ID, 10)
			if current.UserID != "" && current.UserID != userID {
				gateway.Reply(message.Chat.ID, "This bot is already claimed by another operator.")
				return
			}
			current.UserID = userID
			current.WorkspaceID = strconv.FormatInt(message.Chat.ID, 10)
			if err := identityStore.Replace(current); err != nil {
				log.Error("Failed to replace identity: %v", err)
				return
			}
			gateway.Reply(message.Chat.ID, "✅ You're now the operator. Use /publish, /menus, /revise, /retract, /orders and /serve.")
		},
		"uninstall": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			if err := identityStore.Delete(); err != nil {
				log.Error("Failed to delete identity: %v", err)
				return
			}
			gateway.Reply(message.Chat.ID, "Identity removed. Claim again with /claim.")
		},
		"publish": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			date, options, err := parseMenuArguments(message.CommandArguments())
			if err != nil {
				gateway.Reply(message.Chat.ID, "Usage: /publish YYYY-MM-DD option | option | option")
				return
			}
			m, err := menuService.Create(date, options)
			if err != nil {
				gateway.Reply(message.Chat.ID, "😢 "+err.Error())
				return
			}
			gateway.Reply(message.Chat.ID, fmt.Sprintf("✅ Menu %s published for %s.", m.ID, m.Date.Format("2006-01-02")))
		},
		"menus": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			menus, err := menuService.List()
			if err != nil {
				log.Error("Failed to list menus: %v", err)
				return
			}
			if len(menus) == 0 {
				gateway.Reply(message.Chat.ID, "No menus published.")
				return
			}
			var b strings.Builder
			for _, m := range menus {
				state := "draft"
				if m.Sent != nil {
					state = "sent"
				}
				fmt.Fprintf(&b, "%s — %s (%s): %s\n", m.Date.Format("2006-01-02"), m.ID, state, strings.Join(m.Options, " | "))
			}
			gateway.Reply(message.Chat.ID, b.String())
		},
		"revise": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			fields := strings.Fields(message.CommandArguments())
			if len(fields) < 2 {
				gateway.Reply(message.Chat.ID, "Usage: /revise MENU_ID YYYY-MM-DD option | option")
				return
			}
			date, options, err := parseMenuArguments(strings.Join(fields[1:], " "))
			if err != nil {
				gateway.Reply(message.Chat.ID, "Usage: /revise MENU_ID YYYY-MM-DD option | option")
				return
			}
			m, err := menuService.Update(fields[0], date, options)
			if err != nil {
				gateway.Reply(message.Chat.ID, "😢 "+err.Error())
				return
			}
			gateway.Reply(message.Chat.ID, fmt.Sprintf("✅ Menu %s updated.", m.ID))
		},
		"retract": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			menuID := strings.TrimSpace(message.CommandArguments())
			if err := menuService.Delete(menuID); err != nil {
				gateway.Reply(message.Chat.ID, "😢 "+err.Error())
				return
			}
			gateway.Reply(message.Chat.ID, "Menu retracted. Employees are being notified.")
		},
		"orders": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			date := parseDateArgument(message.CommandArguments(), now())
			summary, err := orderSummary(orderService, date, now())
			if err != nil {
				log.Error("Failed to build order summary: %v", err)
				return
			}
			gateway.Reply(message.Chat.ID, summary)
		},
		"serve": func(message *tgbotapi.Message) {
			if !isOperator(message.From.ID) {
				return
			}
			orderID := strings.TrimSpace(message.CommandArguments())
			o, err := orderService.Complete(orderID)
			if err != nil {
				gateway.Reply(message.Chat.ID, "😢 "+err.Error())
				return
			}
			gateway.Reply(message.Chat.ID, fmt.Sprintf("✅ Order for %s marked ready.", o.EmployeeName))
		},
	}

	defaultHandler := func(update tgbotapi.Update) {
		if update.Message == nil || update.Message.Text == "" || update.Message.IsCommand() {
			return
		}
		message := update.Message
		employeeID := strconv.FormatInt(message.From.ID, 10)

		o, err := orderService.ForEmployee(employeeID, now())
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				gateway.Reply(message.Chat.ID, "There's no menu for you today yet. Hang tight!")
			} else {
				log.Error("Failed to find order for %s: %v", employeeID, err)
			}
			return
		}

		text := strings.TrimSpace(message.Text)
		selected, notes := o.Selected, o.Notes
		if rest, ok := strings.CutPrefix(text, "note:"); ok {
			notes = strings.TrimSpace(rest)
		} else if opt, ok := matchOption(orderOptions(menuService, o), text); ok {
			selected = opt
		} else {
			gateway.Reply(message.Chat.ID, "I didn't catch that. Reply with one of today's options, or start with \"note:\" to add notes.")
			return
		}

		if _, err := orderService.SubmitSelection(o.ID, selected, notes); err != nil {
			if errors.Is(err, order.ErrExpired) {
				gateway.Reply(message.Chat.ID, "⏰ Too late, today's orders are closed.")
			} else {
				log.Error("Failed to update order %s: %v", o.ID, err)
				gateway.Reply(message.Chat.ID, "😢 Sorry, I couldn't save that. Please try again.")
			}
			return
		}
		gateway.Reply(message.Chat.ID, "✅ Got it!")
	}

	// Handle graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		<-sigChan
		log.Info("Shutting down...")
		dailyScheduler.Stop()
		tasks.Stop()
		store.Close()
		os.Exit(0)
	}()

	log.Info("Bot is now running. Press CTRL-C to exit.")
	if err := gateway.Start(commandHandlers, defaultHandler); err != nil {
		log.Error("Error running bot: %v", err)
		os.Exit(1)
	}
}

func displayName(u *tgbotapi.User) string {
	name := strings.TrimSpace(u.FirstName + " " + u.LastName)
	if name == "" {
		name = u.UserName
	}
	return name
}

// parseMenuArguments parses "YYYY-MM-DD option | option | option"
func parseMenuArguments(args string) (time.Time, []interface{}, error) {
	fields := strings.SplitN(strings.TrimSpace(args), " ", 2)
	if len(fields) < 2 {
		return time.Time{}, nil, errors.New("missing options")
	}
	date, err := time.Parse("2006-01-02", fields[0])
	if err != nil {
		return time.Time{}, nil, errors.Wrap(err, "bad date")
	}
	parts := strings.Split(fields[1], "|")
	options := make([]interface{}, len(parts))
	for i, p := range parts {
		options[i] = p
	}
	return date, options, nil
}

// parseDateArgument accepts YYYYMMDD or YYYY-MM-DD, falling back to today
func parseDateArgument(args string, today time.Time) time.Time {
	args = strings.TrimSpace(args)
	for _, layout := range []string{"20060102", "2006-01-02"} {
		if d, err := time.Parse(layout, args); err == nil {
			return d
		}
	}
	return today
}

func orderSummary(orders *order.Service, date, today time.Time) (string, error) {
	pending, err := orders.CountPending(date)
	if err != nil {
		return "", err
	}
	active, err := orders.ListActive(date)
	if err != nil {
		return "", err
	}
	ready, err := orders.ListReady(date)
	if err != nil {
		return "", err
	}
	dates, err := orders.SentDates(today)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Orders for %s — %d pending\n", date.Format("2006-01-02"), pending)
	for _, o := range active {
		fmt.Fprintf(&b, "🟡 %s: %s (%s) [%s]\n", o.EmployeeName, o.Selected, o.Notes, o.ID)
	}
	for _, o := range ready {
		fmt.Fprintf(&b, "🟢 %s: %s\n", o.EmployeeName, o.Selected)
	}
	days := make([]string, len(dates))
	for i, d := range dates {
		days[i] = d.Format("2006-01-02")
	}
	fmt.Fprintf(&b, "Days: %s", strings.Join(days, ", "))
	return b.String(), nil
}

// orderOptions resolves the current options for the order's menu, nil
// when the menu is gone.
func orderOptions(menus *menu.Service, o *models.Order) []string {
	if o.MenuID == "" {
		return nil
	}
	m, err := menus.Get(o.MenuID)
	if err != nil {
		return nil
	}
	return m.Options
}

func matchOption(options []string, text string) (string, bool) {
	for _, opt := range options {
		if strings.EqualFold(opt, text) {
			return opt, true
		}
	}
	return "", false
}
