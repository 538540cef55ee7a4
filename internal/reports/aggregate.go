package reports

// TrialBalanceTotals splits a trial balance by the sign of each balance.
type TrialBalanceTotals struct {
	// Credit is the sum of non-negative balances.
	Credit Amount
	// Debit is the sum of negative balances and is never positive.
	Debit Amount
	// DebitDisplay is Debit shown as a positive magnitude.
	DebitDisplay Amount
	// Net is Credit + Debit, the sum of every balance.
	Net Amount
}

// SumTrialBalance computes the totals over every loaded line.
func SumTrialBalance(lines []LedgerLine) TrialBalanceTotals {
	var totals TrialBalanceTotals
	for _, line := range lines {
		if line.Balance.IsNegative() {
			totals.Debit = totals.Debit.Add(line.Balance)
			continue
		}
		totals.Credit = totals.Credit.Add(line.Balance)
	}
	totals.DebitDisplay = totals.Debit.Neg()
	totals.Net = totals.Credit.Add(totals.Debit)
	return totals
}

// DebitOf returns the displayed debit of a line, zero for credit lines.
func DebitOf(line LedgerLine) Amount {
	if line.Balance.IsNegative() {
		return line.Balance.Neg()
	}
	return Amount{}
}

// CreditOf returns the credit of a line, zero for debit lines.
func CreditOf(line LedgerLine) Amount {
	if line.Balance.IsNegative() {
		return Amount{}
	}
	return line.Balance
}

// StockBalance is the derived opening and closing balance of an item.
type StockBalance struct {
	Open  Amount
	Close Amount
}

// BalanceOf computes the balances of item. The opening balance is the
// opening purchase less the closing sale as the backend reports them.
func BalanceOf(item StockItem) StockBalance {
	open := item.OpenPurch.Sub(item.CloseSale)
	return StockBalance{
		Open:  open,
		Close: open.Add(item.Purch.Sub(item.Sale)),
	}
}

// StockTotals sums every column of the stock report.
type StockTotals struct {
	OpenPurch Amount
	CloseSale Amount
	Open      Amount
	Purch     Amount
	Sale      Amount
	Close     Amount
}

// SumStock totals every loaded item.
func SumStock(items []StockItem) StockTotals {
	var totals StockTotals
	for _, item := range items {
		balance := BalanceOf(item)
		totals.OpenPurch = totals.OpenPurch.Add(item.OpenPurch)
		totals.CloseSale = totals.CloseSale.Add(item.CloseSale)
		totals.Open = totals.Open.Add(balance.Open)
		totals.Purch = totals.Purch.Add(item.Purch)
		totals.Sale = totals.Sale.Add(item.Sale)
		totals.Close = totals.Close.Add(balance.Close)
	}
	return totals
}
