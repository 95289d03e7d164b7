package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"go.uber.org/zap"

	"github.com/mmeshcher/coffeetime-storefront/internal/api"
	"github.com/mmeshcher/coffeetime-storefront/internal/cart"
	"github.com/mmeshcher/coffeetime-storefront/internal/config"
	"github.com/mmeshcher/coffeetime-storefront/internal/lifecycle"
	"github.com/mmeshcher/coffeetime-storefront/internal/model"
	"github.com/mmeshcher/coffeetime-storefront/internal/orders"
	"github.com/mmeshcher/coffeetime-storefront/internal/service"
	"github.com/mmeshcher/coffeetime-storefront/internal/session"
	"github.com/mmeshcher/coffeetime-storefront/internal/storage"
)

const usage = `usage: storefront [flags] <command> [args]

commands:
  login <username> <password>
  register <username> <email> <password> [phone]
  logout
  whoami
  menu
  cart show | add <product-id> | set <product-id> <qty> | rm <product-id> | clear
  checkout [-address A] [-phone P] [-comment C]
  orders [-watch [-interval 5s]]
  cancel <order-id>
  delete <order-id>`

var errUsage = errors.New(usage)

type app struct {
	out     io.Writer
	logger  *zap.Logger
	client  *api.Client
	session *session.Manager
	cart    *cart.Cart
	service *service.Service
}

func newApp(ctx context.Context, cfg *config.Config, store storage.Store, logger *zap.Logger, out io.Writer) (*app, error) {
	creds := session.NewCredentialStore(store, logger)

	client := api.NewClient(cfg.APIURL,
		api.WithTimeout(cfg.RequestTimeout),
		api.WithRateLimit(cfg.RateLimit),
		api.WithTokenSource(creds),
		api.WithLogger(logger),
	)

	mgr := session.NewManager(client, creds, logger)
	if err := mgr.Restore(ctx); err != nil {
		return nil, fmt.Errorf("restore session: %w", err)
	}

	c := cart.New(store, logger)
	if err := c.Load(ctx); err != nil {
		return nil, fmt.Errorf("load cart: %w", err)
	}

	gw := orders.NewGateway(client, orders.NewShadowCache(store, logger), mgr, orders.NewMetrics(nil), logger)

	return &app{
		out:     out,
		logger:  logger,
		client:  client,
		session: mgr,
		cart:    c,
		service: service.NewService(mgr, c, gw, client, logger),
	}, nil
}

func (a *app) run(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return errUsage
	}

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		return a.login(ctx, rest)
	case "register":
		return a.register(ctx, rest)
	case "logout":
		if err := a.session.Logout(ctx); err != nil {
			return err
		}
		fmt.Fprintln(a.out, "Вы вышли из аккаунта")
		return nil
	case "whoami":
		return a.whoami()
	case "menu":
		return a.menu(ctx)
	case "cart":
		return a.cartCommand(ctx, rest)
	case "checkout":
		return a.checkout(ctx, rest)
	case "orders":
		return a.orders(ctx, rest)
	case "cancel":
		return a.cancel(ctx, rest)
	case "delete":
		return a.delete(ctx, rest)
	default:
		return errUsage
	}
}

func (a *app) login(ctx context.Context, args []string) error {
	if len(args) != 2 {
		return errUsage
	}
	u, err := a.session.Login(ctx, args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Добро пожаловать, %s!\n", u.Username)
	return nil
}

func (a *app) register(ctx context.Context, args []string) error {
	if len(args) < 3 || len(args) > 4 {
		return errUsage
	}

	req := model.RegisterRequest{
		Username:  args[0],
		Email:     args[1],
		Password:  args[2],
		Password2: args[2],
	}
	if len(args) == 4 {
		req.Phone = args[3]
	}

	u, err := a.session.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Регистрация завершена, добро пожаловать, %s!\n", u.Username)
	return nil
}

func (a *app) whoami() error {
	u := a.session.CurrentUser()
	if u == nil {
		fmt.Fprintln(a.out, "Вы не вошли в аккаунт")
		return nil
	}
	fmt.Fprintf(a.out, "%s (%s)\n", u.Username, u.Role)
	return nil
}

func (a *app) menu(ctx context.Context) error {
	products := a.service.Products(ctx)
	if len(products) == 0 {
		fmt.Fprintln(a.out, "Меню пока пусто")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, p := range products {
		category := ""
		if p.Category != nil {
			category = p.Category.Name
		}
		fmt.Fprintf(tw, "%d\t%s\t%s\t%s ₽\n", p.ID, p.Name, category, p.Price.StringFixed(2))
	}
	return tw.Flush()
}

func (a *app) cartCommand(ctx context.Context, args []string) error {
	if len(args) == 0 {
		return a.showCart()
	}

	switch args[0] {
	case "show":
		return a.showCart()
	case "clear":
		if err := a.cart.Clear(ctx); err != nil {
			return err
		}
	case "add":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		p, err := a.service.Product(ctx, id)
		if err != nil {
			return err
		}
		if err := a.cart.Add(ctx, *p); err != nil {
			return err
		}
	case "set":
		if len(args) != 3 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		qty, err := strconv.Atoi(args[2])
		if err != nil {
			return fmt.Errorf("invalid quantity %q", args[2])
		}
		if err := a.cart.UpdateQuantity(ctx, id, qty); err != nil {
			return err
		}
	case "rm":
		if len(args) != 2 {
			return errUsage
		}
		id, err := parseID(args[1])
		if err != nil {
			return err
		}
		if err := a.cart.Remove(ctx, id); err != nil {
			return err
		}
	default:
		return errUsage
	}

	return a.showCart()
}

func (a *app) showCart() error {
	lines := a.cart.Lines()
	if len(lines) == 0 {
		fmt.Fprintln(a.out, "Корзина пуста")
		return nil
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, l := range lines {
		fmt.Fprintf(tw, "%d\t%s\tx%d\t%s ₽\n", l.Product.ID, l.Product.Name, l.Quantity, l.Subtotal().StringFixed(2))
	}
	fmt.Fprintf(tw, "\tИтого\t%d шт.\t%s ₽\n", a.cart.ItemCount(), a.cart.TotalPrice().StringFixed(2))
	return tw.Flush()
}

func (a *app) checkout(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("checkout", flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	var form model.OrderForm
	fs.StringVar(&form.Address, "address", "", "delivery address")
	fs.StringVar(&form.Phone, "phone", "", "contact phone")
	fs.StringVar(&form.Comment, "comment", "", "order comment")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	o, err := a.service.PlaceOrder(ctx, form)
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "Заказ #%d оформлен на сумму %s ₽\n", o.ID, o.TotalPrice.StringFixed(2))
	return nil
}

func (a *app) orders(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("orders", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	watch := fs.Bool("watch", false, "refresh until every order is completed")
	interval := fs.Duration("interval", 5*time.Second, "refresh interval")
	if err := fs.Parse(args); err != nil {
		return errUsage
	}

	if *watch {
		if *interval <= 0 {
			return errUsage
		}
		return a.service.WatchOrders(ctx, *interval, a.printOrders)
	}

	view, err := a.service.Orders(ctx)
	if err != nil {
		return err
	}
	a.printOrders(view)
	return nil
}

func (a *app) printOrders(view service.OrdersView) {
	if view.Stale {
		fmt.Fprintln(a.out, "Сервер недоступен, показаны сохранённые данные")
	}
	if len(view.Orders) == 0 {
		fmt.Fprintln(a.out, "Заказов пока нет")
		return
	}

	tw := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
	for _, o := range view.Orders {
		actions := lifecycle.For(o.Status)

		var offered []string
		if actions.Cancel {
			offered = append(offered, "Отменить")
		}
		if actions.Delete {
			offered = append(offered, actions.DeleteLabel)
		}

		fmt.Fprintf(tw, "#%d\t%s\t%s ₽\t%s\t%s\n",
			o.ID,
			lifecycle.StatusLabel(o.Status),
			o.TotalPrice.StringFixed(2),
			o.Address,
			strings.Join(offered, ", "),
		)
	}
	_ = tw.Flush()
}

func (a *app) cancel(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	res, err := a.service.CancelOrder(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	a.printOrders(res.View)
	return nil
}

func (a *app) delete(ctx context.Context, args []string) error {
	if len(args) != 1 {
		return errUsage
	}
	id, err := parseID(args[0])
	if err != nil {
		return err
	}

	res, err := a.service.DeleteOrder(ctx, id)
	if err != nil {
		return err
	}
	fmt.Fprintln(a.out, res.Message)
	a.printOrders(res.View)
	return nil
}

func parseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid id %q", raw)
	}
	return id, nil
}

// describe переводит ошибку в сообщение для пользователя.
func describe(err error) string {
	var authErr *session.AuthError
	var actionErr *service.ActionError

	switch {
	case errors.Is(err, errUsage):
		return usage
	case errors.As(err, &authErr):
		return authErr.Message
	case errors.Is(err, service.ErrNotAuthenticated):
		return "Войдите в аккаунт, чтобы продолжить"
	case errors.Is(err, service.ErrEmptyCart):
		return "Корзина пуста"
	case errors.Is(err, service.ErrActionNotAllowed):
		return "Действие недоступно для заказа в этом статусе"
	case errors.As(err, &actionErr):
		switch actionErr.Hint {
		case service.HintRetry:
			return actionErr.Error() + ". Попробуйте позже"
		case service.HintLogin:
			return "Сессия истекла, войдите снова"
		default:
			return actionErr.Error() + ". Обратитесь в поддержку"
		}
	case errors.Is(err, api.ErrUnauthorized):
		return "Сессия истекла, войдите снова"
	case errors.Is(err, api.ErrNetwork):
		return "Сервис недоступен, попробуйте позже"
	default:
		var apiErr *api.Error
		if errors.As(err, &apiErr) {
			return apiErr.Message
		}
		return err.Error()
	}
}
