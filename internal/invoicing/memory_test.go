package invoicing

import (
	"context"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/stockdesk/stockdesk/internal/alerts"
	"github.com/stockdesk/stockdesk/internal/catalog"
)

type memoryRepo struct {
	invoices  map[int64]Invoice
	items     map[int64][]Item
	products  map[int64]catalog.Product
	customers map[int64]bool
	alerts    []alerts.Alert
	nextInv   int64
	nextItem  int64
	nextAlert int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		invoices:  make(map[int64]Invoice),
		items:     make(map[int64][]Item),
		products:  make(map[int64]catalog.Product),
		customers: map[int64]bool{1: true},
	}
}

func (r *memoryRepo) addProduct(id int64, name string, qty, threshold int) {
	r.products[id] = catalog.Product{ID: id, Name: name, Reference: name, QuantityInStock: qty, Threshold: threshold, IsActive: true}
}

func (r *memoryRepo) unresolved(productID int64) []alerts.Alert {
	var out []alerts.Alert
	for _, a := range r.alerts {
		if a.ProductID == productID && !a.Resolved {
			out = append(out, a)
		}
	}
	return out
}

func (r *memoryRepo) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	invoices := make(map[int64]Invoice, len(r.invoices))
	for k, v := range r.invoices {
		invoices[k] = v
	}
	items := make(map[int64][]Item, len(r.items))
	for k, v := range r.items {
		items[k] = append([]Item(nil), v...)
	}
	products := make(map[int64]catalog.Product, len(r.products))
	for k, v := range r.products {
		products[k] = v
	}
	alertsCopy := append([]alerts.Alert(nil), r.alerts...)
	if err := fn(ctx, &memoryTx{repo: r}); err != nil {
		r.invoices, r.items, r.products, r.alerts = invoices, items, products, alertsCopy
		return err
	}
	return nil
}

func (r *memoryRepo) CustomerActive(ctx context.Context, id int64) (bool, error) {
	return r.customers[id], nil
}

func (r *memoryRepo) List(ctx context.Context, filters ListFilters) ([]Invoice, error) {
	out := []Invoice{}
	for _, inv := range r.invoices {
		if filters.Type != "" && inv.Type != filters.Type {
			continue
		}
		if filters.Status != "" && inv.Status != filters.Status {
			continue
		}
		out = append(out, inv)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out, nil
}

func (r *memoryRepo) ListByCustomer(ctx context.Context, customerID int64) ([]Invoice, error) {
	out := []Invoice{}
	for _, inv := range r.invoices {
		if inv.CustomerID == customerID {
			out = append(out, inv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := r.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	inv.Customer = &CustomerSummary{ID: inv.CustomerID, Name: "Garage Central"}
	return inv, nil
}

func (r *memoryRepo) ItemsFor(ctx context.Context, ids []int64) (map[int64][]Item, error) {
	out := make(map[int64][]Item, len(ids))
	for _, id := range ids {
		for _, it := range r.items[id] {
			if p, ok := r.products[it.ProductID]; ok {
				it.Product = &ProductSummary{ID: p.ID, Name: p.Name, Reference: p.Reference}
			}
			out[id] = append(out[id], it)
		}
	}
	return out, nil
}

type memoryTx struct {
	repo *memoryRepo
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id int64) (Invoice, error) {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return Invoice{}, ErrNotFound
	}
	return inv, nil
}

func (t *memoryTx) SetStatus(ctx context.Context, id int64, status Status) error {
	inv, ok := t.repo.invoices[id]
	if !ok {
		return ErrNotFound
	}
	inv.Status = status
	t.repo.invoices[id] = inv
	return nil
}

func (t *memoryTx) CustomerActive(ctx context.Context, id int64) (bool, error) {
	return t.repo.customers[id], nil
}

func (t *memoryTx) Insert(ctx context.Context, inv Invoice) (Invoice, error) {
	t.repo.nextInv++
	inv.ID = t.repo.nextInv
	inv.CreatedAt = time.Now()
	inv.UpdatedAt = inv.CreatedAt
	t.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (t *memoryTx) Update(ctx context.Context, inv Invoice) (Invoice, error) {
	if _, ok := t.repo.invoices[inv.ID]; !ok {
		return Invoice{}, ErrNotFound
	}
	t.repo.invoices[inv.ID] = inv
	return inv, nil
}

func (t *memoryTx) InsertItem(ctx context.Context, item Item) (Item, error) {
	t.repo.nextItem++
	item.ID = t.repo.nextItem
	t.repo.items[item.InvoiceID] = append(t.repo.items[item.InvoiceID], item)
	return item, nil
}

func (t *memoryTx) Items(ctx context.Context, invoiceID int64) ([]Item, error) {
	return append([]Item(nil), t.repo.items[invoiceID]...), nil
}

func (t *memoryTx) Delete(ctx context.Context, id int64) error {
	if _, ok := t.repo.invoices[id]; !ok {
		return ErrNotFound
	}
	delete(t.repo.items, id)
	delete(t.repo.invoices, id)
	return nil
}

func (t *memoryTx) Stock() catalog.StockStore {
	return memoryStock{repo: t.repo}
}

func (t *memoryTx) Alerts() alerts.Store {
	return memoryAlerts{repo: t.repo}
}

type memoryStock struct {
	repo *memoryRepo
}

func (s memoryStock) GetForUpdate(ctx context.Context, id int64) (catalog.Product, error) {
	p, ok := s.repo.products[id]
	if !ok {
		return catalog.Product{}, catalog.ErrNotFound
	}
	return p, nil
}

func (s memoryStock) SetQuantity(ctx context.Context, id int64, qty int) error {
	p, ok := s.repo.products[id]
	if !ok {
		return catalog.ErrNotFound
	}
	p.QuantityInStock = qty
	s.repo.products[id] = p
	return nil
}

type memoryAlerts struct {
	repo *memoryRepo
}

func (s memoryAlerts) FindUnresolved(ctx context.Context, productID int64) (alerts.Alert, bool, error) {
	for _, a := range s.repo.alerts {
		if a.ProductID == productID && !a.Resolved {
			return a, true, nil
		}
	}
	return alerts.Alert{}, false, nil
}

func (s memoryAlerts) Insert(ctx context.Context, a alerts.Alert) (alerts.Alert, error) {
	s.repo.nextAlert++
	a.ID = s.repo.nextAlert
	s.repo.alerts = append(s.repo.alerts, a)
	return a, nil
}

func (s memoryAlerts) Escalate(ctx context.Context, id int64, typ alerts.Type, message string) error {
	for i := range s.repo.alerts {
		if s.repo.alerts[i].ID == id {
			s.repo.alerts[i].Type = typ
			s.repo.alerts[i].Message = message
		}
	}
	return nil
}

func (s memoryAlerts) ResolveForProduct(ctx context.Context, productID int64, at time.Time) (int64, error) {
	var n int64
	for i := range s.repo.alerts {
		a := &s.repo.alerts[i]
		if a.ProductID == productID && !a.Resolved {
			a.Resolved = true
			resolved := at
			a.ResolvedAt = &resolved
			n++
		}
	}
	return n, nil
}

type recordingPublisher struct {
	published []alerts.Alert
}

func (p *recordingPublisher) Publish(ctx context.Context, raised []alerts.Alert) {
	p.published = append(p.published, raised...)
}

type countingCache struct {
	invalidations int
}

func (c *countingCache) Invalidate(ctx context.Context) {
	c.invalidations++
}

type stubRenderer struct {
	calls int
	html  string
	err   error
}

func (r *stubRenderer) RenderHTML(ctx context.Context, html string) ([]byte, error) {
	r.calls++
	r.html = html
	if r.err != nil {
		return nil, r.err
	}
	return []byte("%PDF-1.7 stub"), nil
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}
