package reports

import (
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// RecordID is a bill id. The backend sends it as a number or a numeric string.
type RecordID int64

func (id *RecordID) UnmarshalJSON(data []byte) error {
	raw := bytes.TrimSpace(data)
	if bytes.Equal(raw, []byte("null")) {
		*id = 0
		return nil
	}
	text := strings.TrimSpace(strings.Trim(string(raw), `"`))
	if text == "" {
		*id = 0
		return nil
	}
	n, err := strconv.ParseInt(text, 10, 64)
	if err != nil {
		return fmt.Errorf("reports: id %s: %w", raw, err)
	}
	*id = RecordID(n)
	return nil
}

// DayBookEntry is one cash movement of the day book.
type DayBookEntry struct {
	About       string `json:"payment_about"`
	Amount      Amount `json:"amount"`
	PaymentType string `json:"payment_type"`
	Date        string `json:"payment_date"`
}

// DayBook is the day book response.
type DayBook struct {
	Received      []DayBookEntry `json:"received"`
	Payment       []DayBookEntry `json:"payment"`
	TotalReceived Amount         `json:"total_received_amount"`
	TotalPayment  Amount         `json:"total_payment_amount"`
}

// StockItem is one product line of the stock report.
type StockItem struct {
	ProductType string `json:"product_type"`
	OpenPurch   Amount `json:"openpurch"`
	CloseSale   Amount `json:"closesale"`
	Purch       Amount `json:"purch"`
	Sale        Amount `json:"sale"`
}

// StockReport is the stock report response.
type StockReport struct {
	Stocks []StockItem `json:"stocks"`
}

// LedgerLine is one account balance of the trial balance.
type LedgerLine struct {
	About   string `json:"payment_about"`
	Balance Amount `json:"balance"`
}

// TrialBalance is the trial balance response.
type TrialBalance struct {
	Payment []LedgerLine `json:"payment"`
}

// Purchase is a purchase bill header.
type Purchase struct {
	ID           RecordID `json:"id"`
	BillNo       string   `json:"bill_no"`
	SupplierName string   `json:"supplier_name"`
	Date         string   `json:"purchase_date"`
	TotalAmount  Amount   `json:"total_amount"`
}

// PurchaseLine is one product of a purchase bill.
type PurchaseLine struct {
	ProductName string `json:"product_name"`
	Quantity    Amount `json:"quantity"`
	Rate        Amount `json:"rate"`
	Amount      Amount `json:"amount"`
}

// PurchaseDetail is the purchase-by-id response.
type PurchaseDetail struct {
	Purchase Purchase       `json:"purchase"`
	Lines    []PurchaseLine `json:"purchaseSub"`
}

// PurchaseList is the response of the purchase list endpoints.
type PurchaseList struct {
	Purchases []Purchase `json:"purchase"`
}

// Sale is a sales bill header.
type Sale struct {
	ID           RecordID `json:"id"`
	BillNo       string   `json:"bill_no"`
	CustomerName string   `json:"customer_name"`
	Date         string   `json:"sales_date"`
	TotalAmount  Amount   `json:"total_amount"`
}

// SaleDetail is the sales-by-id response.
type SaleDetail struct {
	Sale  Sale           `json:"sales"`
	Lines []PurchaseLine `json:"salesSub"`
}
