// Command fakebackend serves the report REST endpoints from a fixture file so
// the dashboard can run locally without the real backend.
package main

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/golang-jwt/jwt/v5"
	"github.com/kelseyhightower/envconfig"
	"gopkg.in/yaml.v3"

	"github.com/tilesmart/tiles-admin/internal/platform/httpx"
)

//go:embed fixtures.yaml
var defaultFixtures []byte

type config struct {
	Addr     string        `envconfig:"ADDR" default:":8000"`
	Secret   string        `envconfig:"SECRET" default:"fakebackend-secret"`
	TokenTTL time.Duration `envconfig:"TOKEN_TTL" default:"1h"`
	Fixtures string        `envconfig:"FIXTURES"`
}

type user struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	Subject  string `yaml:"subject"`
}

type entry struct {
	About  string  `yaml:"payment_about" json:"payment_about"`
	Amount float64 `yaml:"amount" json:"amount"`
	Type   string  `yaml:"payment_type" json:"payment_type"`
	Date   string  `yaml:"payment_date" json:"payment_date"`
}

type stock struct {
	Product   string  `yaml:"product_type" json:"product_type"`
	OpenPurch float64 `yaml:"openpurch" json:"openpurch"`
	CloseSale float64 `yaml:"closesale" json:"closesale"`
	Purch     float64 `yaml:"purch" json:"purch"`
	Sale      float64 `yaml:"sale" json:"sale"`
}

type ledger struct {
	About   string  `yaml:"payment_about" json:"payment_about"`
	Balance float64 `yaml:"balance" json:"balance"`
}

type line struct {
	Product  string  `yaml:"product_name" json:"product_name"`
	Quantity float64 `yaml:"quantity" json:"quantity"`
	Rate     float64 `yaml:"rate" json:"rate"`
	Amount   float64 `yaml:"amount" json:"amount"`
}

type bill struct {
	ID       int64   `yaml:"id"`
	BillNo   string  `yaml:"bill_no"`
	Supplier string  `yaml:"supplier_name"`
	Customer string  `yaml:"customer_name"`
	Purchase string  `yaml:"purchase_date"`
	Sales    string  `yaml:"sales_date"`
	Total    float64 `yaml:"total_amount"`
	Lines    []line  `yaml:"lines"`
}

func (b bill) purchaseHeader() map[string]any {
	return map[string]any{"id": b.ID, "bill_no": b.BillNo, "supplier_name": b.Supplier, "purchase_date": b.Purchase, "total_amount": b.Total}
}

func (b bill) salesHeader() map[string]any {
	return map[string]any{"id": b.ID, "bill_no": b.BillNo, "customer_name": b.Customer, "sales_date": b.Sales, "total_amount": b.Total}
}

type fixtures struct {
	Users   []user `yaml:"users"`
	DayBook struct {
		Received []entry `yaml:"received"`
		Payment  []entry `yaml:"payment"`
	} `yaml:"daybook"`
	Stocks    []stock           `yaml:"stocks"`
	Ledger    []ledger          `yaml:"ledger"`
	Purchases map[string][]bill `yaml:"purchases"`
	Sales     []bill            `yaml:"sales"`
}

func loadFixtures(path string) (*fixtures, error) {
	data := defaultFixtures
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		data = raw
	}
	var fx fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures: %w", err)
	}
	return &fx, nil
}

type server struct {
	fx     *fixtures
	secret []byte
	ttl    time.Duration
	logger *slog.Logger
}

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stdout, nil))
	var cfg config
	if err := envconfig.Process("FAKE_BACKEND", &cfg); err != nil {
		logger.Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	fx, err := loadFixtures(cfg.Fixtures)
	if err != nil {
		logger.Error("load fixtures", slog.Any("error", err))
		os.Exit(1)
	}
	s := &server{fx: fx, secret: []byte(cfg.Secret), ttl: cfg.TokenTTL, logger: logger}
	logger.Info("fake backend listening", slog.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, s.routes()); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error("serve", slog.Any("error", err))
		os.Exit(1)
	}
}

func (s *server) routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Logger, middleware.Recoverer)
	r.Post("/api/web-login", s.login)
	r.Group(func(r chi.Router) {
		r.Use(s.requireToken)
		r.Post("/api/web-fetch-daybook-report", s.dayBook)
		r.Post("/api/web-download-daybook-report", s.dayBookCSV)
		r.Post("/api/web-fetch-stock-report", s.stock)
		r.Post("/api/web-download-stock-report", s.stockCSV)
		r.Post("/api/web-fetch-trialBalance-report", s.trialBalance)
		r.Post("/api/web-download-trialBalance-report", s.trialBalanceCSV)
		r.Get("/api/web-fetch-purchase-granite", s.purchases("granite"))
		r.Get("/api/web-fetch-purchase-tiles", s.purchases("tiles"))
		r.Get("/api/web-fetch-purchase-by-id/{id}", s.purchaseByID)
		r.Get("/api/web-fetch-sales-by-id/{id}", s.salesByID)
	})
	return r
}

func (s *server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad request", err.Error())
		return
	}
	for _, u := range s.fx.Users {
		if u.Username != req.Username || u.Password != req.Password {
			continue
		}
		token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
			Subject:   u.Subject,
			IssuedAt:  jwt.NewNumericDate(time.Now()),
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(s.ttl)),
		}).SignedString(s.secret)
		if err != nil {
			httpx.Problem(w, http.StatusInternalServerError, "Login failed", err.Error())
			return
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"UserInfo": map[string]string{"token": token, "username": u.Username}})
		return
	}
	httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "invalid username or password")
}

func (s *server) requireToken(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "bearer token required")
			return
		}
		_, err := jwt.Parse(raw, func(*jwt.Token) (any, error) { return s.secret, nil },
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
		if err != nil {
			httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", err.Error())
			return
		}
		next.ServeHTTP(w, r)
	})
}

type dateRange struct {
	From string `json:"from_date"`
	To   string `json:"to_date"`
}

// contains compares ISO dates as strings. An empty bound is open.
func (d dateRange) contains(date string) bool {
	if d.From != "" && date < d.From {
		return false
	}
	to := d.To
	if to == "" {
		to = d.From
	}
	return to == "" || date <= to
}

func readRange(w http.ResponseWriter, r *http.Request) (dateRange, bool) {
	var d dateRange
	if err := httpx.DecodeJSON(r, &d); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad request", err.Error())
		return d, false
	}
	return d, true
}

func (s *server) dayBookEntries(d dateRange) (received, payment []entry) {
	for _, e := range s.fx.DayBook.Received {
		if d.contains(e.Date) {
			received = append(received, e)
		}
	}
	for _, e := range s.fx.DayBook.Payment {
		if d.contains(e.Date) {
			payment = append(payment, e)
		}
	}
	return received, payment
}

func sum(entries []entry) float64 {
	total := 0.0
	for _, e := range entries {
		total += e.Amount
	}
	return total
}

func (s *server) dayBook(w http.ResponseWriter, r *http.Request) {
	d, ok := readRange(w, r)
	if !ok {
		return
	}
	received, payment := s.dayBookEntries(d)
	httpx.JSON(w, http.StatusOK, map[string]any{
		"received":              nonNil(received),
		"payment":               nonNil(payment),
		"total_received_amount": sum(received),
		"total_payment_amount":  sum(payment),
	})
}

func (s *server) dayBookCSV(w http.ResponseWriter, r *http.Request) {
	d, ok := readRange(w, r)
	if !ok {
		return
	}
	received, payment := s.dayBookEntries(d)
	rows := [][]string{{"direction", "about", "type", "date", "amount"}}
	for _, e := range received {
		rows = append(rows, []string{"received", e.About, e.Type, e.Date, number(e.Amount)})
	}
	for _, e := range payment {
		rows = append(rows, []string{"payment", e.About, e.Type, e.Date, number(e.Amount)})
	}
	s.writeCSV(w, rows)
}

func (s *server) stock(w http.ResponseWriter, r *http.Request) {
	if _, ok := readRange(w, r); !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"stocks": nonNil(s.fx.Stocks)})
}

func (s *server) stockCSV(w http.ResponseWriter, r *http.Request) {
	if _, ok := readRange(w, r); !ok {
		return
	}
	rows := [][]string{{"product", "openpurch", "closesale", "purch", "sale"}}
	for _, st := range s.fx.Stocks {
		rows = append(rows, []string{st.Product, number(st.OpenPurch), number(st.CloseSale), number(st.Purch), number(st.Sale)})
	}
	s.writeCSV(w, rows)
}

func (s *server) trialBalance(w http.ResponseWriter, r *http.Request) {
	if _, ok := readRange(w, r); !ok {
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payment": nonNil(s.fx.Ledger)})
}

func (s *server) trialBalanceCSV(w http.ResponseWriter, r *http.Request) {
	if _, ok := readRange(w, r); !ok {
		return
	}
	rows := [][]string{{"account", "balance"}}
	for _, l := range s.fx.Ledger {
		rows = append(rows, []string{l.About, number(l.Balance)})
	}
	s.writeCSV(w, rows)
}

func (s *server) purchases(kind string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		d := dateRange{From: r.URL.Query().Get("from_date"), To: r.URL.Query().Get("to_date")}
		out := []map[string]any{}
		for _, b := range s.fx.Purchases[kind] {
			if d.contains(b.Purchase) {
				out = append(out, b.purchaseHeader())
			}
		}
		httpx.JSON(w, http.StatusOK, map[string]any{"purchase": out})
	}
}

func (s *server) purchaseByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad request", "id must be a number")
		return
	}
	for _, bills := range s.fx.Purchases {
		for _, b := range bills {
			if b.ID == id {
				httpx.JSON(w, http.StatusOK, map[string]any{"purchase": b.purchaseHeader(), "purchaseSub": nonNil(b.Lines)})
				return
			}
		}
	}
	httpx.Problem(w, http.StatusNotFound, "Not found", "purchase not found")
}

func (s *server) salesByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad request", "id must be a number")
		return
	}
	for _, b := range s.fx.Sales {
		if b.ID == id {
			httpx.JSON(w, http.StatusOK, map[string]any{"sales": b.salesHeader(), "salesSub": nonNil(b.Lines)})
			return
		}
	}
	httpx.Problem(w, http.StatusNotFound, "Not found", "sale not found")
}

func (s *server) writeCSV(w http.ResponseWriter, rows [][]string) {
	var buf bytes.Buffer
	if err := csv.NewWriter(&buf).WriteAll(rows); err != nil {
		s.logger.Error("write csv", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "CSV failed", err.Error())
		return
	}
	w.Header().Set("Content-Type", "text/csv")
	_, _ = w.Write(buf.Bytes())
}

func number(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}

func nonNil[T any](items []T) []T {
	if items == nil {
		return []T{}
	}
	return items
}
