package reports

import (
	"context"
	"fmt"
	"net/http"

	"github.com/tilesmart/tiles-admin/internal/backend"
	"github.com/tilesmart/tiles-admin/internal/layout"
	"github.com/tilesmart/tiles-admin/internal/query"
	"github.com/tilesmart/tiles-admin/internal/table"
)

// Report names.
const (
	DayBookReport         = "daybook"
	StockReportName       = "stock"
	TrialBalanceReport    = "trial-balance"
	PurchaseGraniteReport = "purchase-granite"
	PurchaseTilesReport   = "purchase-tiles"
	PurchaseReport        = "purchase"
	SalesReport           = "sales"
)

// Backend issues authenticated JSON requests.
type Backend interface {
	DoJSON(ctx context.Context, creds backend.Credentials, method, path string, body, out any) error
}

// Catalog holds every compiled report in display order.
type Catalog struct {
	order   []Report
	reports map[string]Report
}

// NewCatalog compiles the report definitions against be.
func NewCatalog(be Backend, cfg query.RegistryConfig, layouts Layouts) *Catalog {
	c := &Catalog{reports: make(map[string]Report)}
	c.add(Compile(applyLayout(dayBookDefinition(be), layouts), cfg))
	c.add(Compile(applyLayout(stockDefinition(be), layouts), cfg))
	c.add(Compile(applyLayout(trialBalanceDefinition(be), layouts), cfg))
	c.add(Compile(applyLayout(purchaseListDefinition(be, PurchaseGraniteReport, "Granite Purchases", "granite", "/api/web-fetch-purchase-granite"), layouts), cfg))
	c.add(Compile(applyLayout(purchaseListDefinition(be, PurchaseTilesReport, "Tiles Purchases", "tiles", "/api/web-fetch-purchase-tiles"), layouts), cfg))
	c.add(Compile(applyLayout(purchaseDefinition(be), layouts), cfg))
	c.add(Compile(applyLayout(salesDefinition(be), layouts), cfg))
	return c
}

func (c *Catalog) add(r Report) {
	c.order = append(c.order, r)
	c.reports[r.Meta().Name] = r
}

// Lookup finds a report by name.
func (c *Catalog) Lookup(name string) (Report, bool) {
	r, ok := c.reports[name]
	return r, ok
}

// All returns every report in display order.
func (c *Catalog) All() []Report {
	return c.order
}

// Forget drops every binding held for viewer.
func (c *Catalog) Forget(viewer string) {
	for _, r := range c.order {
		r.Forget(viewer)
	}
}

// Path links to the screen of report with params.
func Path(report string, p query.Params) string {
	path := "/reports/" + report
	if values := p.Values(); len(values) > 0 {
		path += "?" + values.Encode()
	}
	return path
}

func post[Resp any](be Backend, path string) query.Fetcher[Resp] {
	return func(ctx context.Context, creds backend.Credentials, p query.Params) (Resp, error) {
		var out Resp
		err := be.DoJSON(ctx, creds, http.MethodPost, path, p, &out)
		return out, err
	}
}

func get[Resp any](be Backend, path string) query.Fetcher[Resp] {
	return func(ctx context.Context, creds backend.Credentials, p query.Params) (Resp, error) {
		var out Resp
		err := be.DoJSON(ctx, creds, http.MethodGet, path, nil, &out)
		return out, err
	}
}

func getByID[Resp any](be Backend, pattern string) query.Fetcher[Resp] {
	return func(ctx context.Context, creds backend.Credentials, p query.Params) (Resp, error) {
		var out Resp
		err := be.DoJSON(ctx, creds, http.MethodGet, fmt.Sprintf(pattern, p.ID), nil, &out)
		return out, err
	}
}

func money[T any](amount func(T) Amount) func(T) string {
	return func(row T) string { return amount(row).Money() }
}

func qty[T any](amount func(T) Amount) func(T) string {
	return func(row T) string { return amount(row).Quantity() }
}

func value[T any](amount func(T) Amount) func(T) any {
	return func(row T) any { return amount(row) }
}

func dayBookDefinition(be Backend) Definition[DayBook, DayBookEntry] {
	amount := func(e DayBookEntry) Amount { return e.Amount }
	engine := table.New(7,
		table.Column[DayBookEntry]{ID: "about", Header: "Particulars", Value: func(e DayBookEntry) any { return e.About }, Searchable: true, Sortable: true},
		table.Column[DayBookEntry]{ID: "type", Header: "Mode", Value: func(e DayBookEntry) any { return e.PaymentType }, Searchable: true, Sortable: true},
		table.Column[DayBookEntry]{ID: "date", Header: "Date", Value: func(e DayBookEntry) any { return e.Date }, Sortable: true, Hidden: true},
		table.Column[DayBookEntry]{ID: "amount", Header: "Amount", Value: value(amount), Cell: money(amount), Sortable: true, Align: table.AlignRight},
	)
	totals := func(rows []DayBookEntry) map[string]string {
		return map[string]string{"amount": SumAmounts(rows, amount).Money()}
	}
	return Definition[DayBook, DayBookEntry]{
		Meta: Meta{
			Name:        DayBookReport,
			Title:       "Day Book",
			Kind:        query.KindDate,
			Description: "Cash received and paid on a day.",
			Listed:      true,
			Export: ExportConfig{
				CSVPath:     "/api/web-download-daybook-report",
				CSVFilename: "day_book.csv",
				FileStem:    "day_book",
				Orientation: layout.Portrait,
			},
		},
		Fetch: post[DayBook](be, "/api/web-fetch-daybook-report"),
		Sections: []Section[DayBook, DayBookEntry]{
			{ID: "received", Title: "Received", Rows: func(d DayBook) []DayBookEntry { return d.Received }, Table: engine, Totals: totals},
			{ID: "payment", Title: "Payment", Rows: func(d DayBook) []DayBookEntry { return d.Payment }, Table: engine, Totals: totals},
		},
		Fields: func(_ DayBook, p query.Params) []layout.Field {
			return []layout.Field{{Label: "Date", Value: p.FromDate}}
		},
		Summary: func(d DayBook) []layout.Field {
			received := SumAmounts(d.Received, amount)
			paid := SumAmounts(d.Payment, amount)
			return []layout.Field{
				{Label: "Total received", Value: received.Money()},
				{Label: "Total paid", Value: paid.Money()},
				{Label: "Balance", Value: received.Sub(paid).Money()},
			}
		},
	}
}

func stockDefinition(be Backend) Definition[StockReport, StockItem] {
	open := func(i StockItem) Amount { return BalanceOf(i).Open }
	closing := func(i StockItem) Amount { return BalanceOf(i).Close }
	openPurch := func(i StockItem) Amount { return i.OpenPurch }
	closeSale := func(i StockItem) Amount { return i.CloseSale }
	purch := func(i StockItem) Amount { return i.Purch }
	sale := func(i StockItem) Amount { return i.Sale }
	engine := table.New(7,
		table.Column[StockItem]{ID: "product_type", Header: "Product", Value: func(i StockItem) any { return i.ProductType }, Searchable: true, Sortable: true},
		table.Column[StockItem]{ID: "openpurch", Header: "Opening Purchase", Value: value(openPurch), Cell: qty(openPurch), Sortable: true, Align: table.AlignRight},
		table.Column[StockItem]{ID: "closesale", Header: "Closing Sale", Value: value(closeSale), Cell: qty(closeSale), Sortable: true, Align: table.AlignRight},
		table.Column[StockItem]{ID: "open", Header: "Open Balance", Value: value(open), Cell: qty(open), Sortable: true, Align: table.AlignRight},
		table.Column[StockItem]{ID: "purch", Header: "Purchase", Value: value(purch), Cell: qty(purch), Sortable: true, Align: table.AlignRight},
		table.Column[StockItem]{ID: "sale", Header: "Sale", Value: value(sale), Cell: qty(sale), Sortable: true, Align: table.AlignRight},
		table.Column[StockItem]{ID: "close", Header: "Close Balance", Value: value(closing), Cell: qty(closing), Sortable: true, Align: table.AlignRight},
	)
	return Definition[StockReport, StockItem]{
		Meta: Meta{
			Name:        StockReportName,
			Title:       "Stock Report",
			Kind:        query.KindRange,
			Description: "Opening, movement and closing stock per product.",
			Listed:      true,
			Export: ExportConfig{
				CSVPath:     "/api/web-download-stock-report",
				CSVFilename: "stock.csv",
				FileStem:    "stock",
				Orientation: layout.Landscape,
			},
		},
		Fetch: post[StockReport](be, "/api/web-fetch-stock-report"),
		Sections: []Section[StockReport, StockItem]{{
			ID:    "stocks",
			Rows:  func(r StockReport) []StockItem { return r.Stocks },
			Table: engine,
			Totals: func(rows []StockItem) map[string]string {
				t := SumStock(rows)
				return map[string]string{
					"openpurch": t.OpenPurch.Quantity(),
					"closesale": t.CloseSale.Quantity(),
					"open":      t.Open.Quantity(),
					"purch":     t.Purch.Quantity(),
					"sale":      t.Sale.Quantity(),
					"close":     t.Close.Quantity(),
				}
			},
		}},
		Fields: rangeFields[StockReport],
	}
}

func trialBalanceDefinition(be Backend) Definition[TrialBalance, LedgerLine] {
	engine := table.New(10,
		table.Column[LedgerLine]{ID: "about", Header: "Account", Value: func(l LedgerLine) any { return l.About }, Searchable: true, Sortable: true},
		table.Column[LedgerLine]{ID: "debit", Header: "Debit", Value: value(DebitOf), Cell: money(DebitOf), Sortable: true, Align: table.AlignRight},
		table.Column[LedgerLine]{ID: "credit", Header: "Credit", Value: value(CreditOf), Cell: money(CreditOf), Sortable: true, Align: table.AlignRight},
	)
	return Definition[TrialBalance, LedgerLine]{
		Meta: Meta{
			Name:        TrialBalanceReport,
			Title:       "Trial Balance",
			Kind:        query.KindRange,
			Description: "Account balances split into debit and credit.",
			Listed:      true,
			Export: ExportConfig{
				CSVPath:     "/api/web-download-trialBalance-report",
				CSVFilename: "trial_balance.csv",
				FileStem:    "trial_balance",
				Orientation: layout.Portrait,
			},
		},
		Fetch: post[TrialBalance](be, "/api/web-fetch-trialBalance-report"),
		Sections: []Section[TrialBalance, LedgerLine]{{
			ID:    "accounts",
			Rows:  func(tb TrialBalance) []LedgerLine { return tb.Payment },
			Table: engine,
			Totals: func(rows []LedgerLine) map[string]string {
				t := SumTrialBalance(rows)
				return map[string]string{"debit": t.DebitDisplay.Money(), "credit": t.Credit.Money()}
			},
		}},
		Fields: rangeFields[TrialBalance],
		Summary: func(tb TrialBalance) []layout.Field {
			t := SumTrialBalance(tb.Payment)
			return []layout.Field{{Label: "Net balance", Value: t.Net.Money()}}
		},
	}
}

func purchaseListDefinition(be Backend, name, title, product, path string) Definition[PurchaseList, Purchase] {
	total := func(p Purchase) Amount { return p.TotalAmount }
	engine := table.New(10,
		table.Column[Purchase]{ID: "bill_no", Header: "Bill No", Value: func(p Purchase) any { return p.BillNo }, Searchable: true, Sortable: true,
			Link: func(p Purchase) string { return Path(PurchaseReport, query.Params{ID: int64(p.ID)}) }},
		table.Column[Purchase]{ID: "supplier", Header: "Supplier", Value: func(p Purchase) any { return p.SupplierName }, Searchable: true, Sortable: true},
		table.Column[Purchase]{ID: "date", Header: "Date", Value: func(p Purchase) any { return p.Date }, Searchable: true, Sortable: true},
		table.Column[Purchase]{ID: "total", Header: "Total", Value: value(total), Cell: money(total), Sortable: true, Align: table.AlignRight},
	)
	return Definition[PurchaseList, Purchase]{
		Meta: Meta{
			Name:        name,
			Title:       title,
			Kind:        query.KindNone,
			Description: "Purchase bills recorded for " + product + ".",
			Listed:      true,
			Export:      ExportConfig{FileStem: name, Orientation: layout.Portrait},
		},
		Fetch: get[PurchaseList](be, path),
		Sections: []Section[PurchaseList, Purchase]{{
			ID:    "purchases",
			Rows:  func(l PurchaseList) []Purchase { return l.Purchases },
			Table: engine,
			Totals: func(rows []Purchase) map[string]string {
				return map[string]string{"total": SumAmounts(rows, total).Money()}
			},
		}},
	}
}

func lineEngine() *table.Engine[PurchaseLine] {
	quantity := func(l PurchaseLine) Amount { return l.Quantity }
	rate := func(l PurchaseLine) Amount { return l.Rate }
	amount := func(l PurchaseLine) Amount { return l.Amount }
	return table.New(10,
		table.Column[PurchaseLine]{ID: "product", Header: "Product", Value: func(l PurchaseLine) any { return l.ProductName }, Searchable: true, Sortable: true},
		table.Column[PurchaseLine]{ID: "quantity", Header: "Quantity", Value: value(quantity), Cell: qty(quantity), Sortable: true, Align: table.AlignRight},
		table.Column[PurchaseLine]{ID: "rate", Header: "Rate", Value: value(rate), Cell: money(rate), Sortable: true, Align: table.AlignRight},
		table.Column[PurchaseLine]{ID: "amount", Header: "Amount", Value: value(amount), Cell: money(amount), Sortable: true, Align: table.AlignRight},
	)
}

func lineTotals(rows []PurchaseLine) map[string]string {
	return map[string]string{
		"quantity": SumAmounts(rows, func(l PurchaseLine) Amount { return l.Quantity }).Quantity(),
		"amount":   SumAmounts(rows, func(l PurchaseLine) Amount { return l.Amount }).Money(),
	}
}

func purchaseDefinition(be Backend) Definition[PurchaseDetail, PurchaseLine] {
	return Definition[PurchaseDetail, PurchaseLine]{
		Meta: Meta{
			Name:        PurchaseReport,
			Title:       "Purchase Bill",
			Kind:        query.KindID,
			Description: "Lines of a single purchase bill.",
			Listed:      true,
			Export:      ExportConfig{FileStem: "purchase", Orientation: layout.Portrait},
		},
		Fetch: getByID[PurchaseDetail](be, "/api/web-fetch-purchase-by-id/%d"),
		Sections: []Section[PurchaseDetail, PurchaseLine]{{
			ID:     "lines",
			Rows:   func(d PurchaseDetail) []PurchaseLine { return d.Lines },
			Table:  lineEngine(),
			Totals: lineTotals,
		}},
		Fields: func(d PurchaseDetail, _ query.Params) []layout.Field {
			return []layout.Field{
				{Label: "Bill No", Value: d.Purchase.BillNo},
				{Label: "Supplier", Value: d.Purchase.SupplierName},
				{Label: "Date", Value: d.Purchase.Date},
				{Label: "Bill total", Value: d.Purchase.TotalAmount.Money()},
			}
		},
	}
}

func salesDefinition(be Backend) Definition[SaleDetail, PurchaseLine] {
	return Definition[SaleDetail, PurchaseLine]{
		Meta: Meta{
			Name:        SalesReport,
			Title:       "Sales Bill",
			Kind:        query.KindID,
			Description: "Lines of a single sales bill.",
			Listed:      true,
			Export:      ExportConfig{FileStem: "sales", Orientation: layout.Portrait},
		},
		Fetch: getByID[SaleDetail](be, "/api/web-fetch-sales-by-id/%d"),
		Sections: []Section[SaleDetail, PurchaseLine]{{
			ID:     "lines",
			Rows:   func(d SaleDetail) []PurchaseLine { return d.Lines },
			Table:  lineEngine(),
			Totals: lineTotals,
		}},
		Fields: func(d SaleDetail, _ query.Params) []layout.Field {
			return []layout.Field{
				{Label: "Bill No", Value: d.Sale.BillNo},
				{Label: "Customer", Value: d.Sale.CustomerName},
				{Label: "Date", Value: d.Sale.Date},
				{Label: "Bill total", Value: d.Sale.TotalAmount.Money()},
			}
		},
	}
}

func rangeFields[Resp any](_ Resp, p query.Params) []layout.Field {
	return []layout.Field{
		{Label: "From", Value: p.FromDate},
		{Label: "To", Value: p.ToDate},
	}
}
