// Package paper provides in-memory exchanges that fill orders against a fixed
// book and move funds between each other without touching a network.
package paper

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/cyclebot/internal/domain"
)

// Status tokens reported by paper exchanges.
const (
	StatusPending   = "pending"
	StatusCompleted = "completed"
	StatusOpen      = "open"
	StatusDone      = "done"
)

// Network connects paper exchanges so a Send on one credits another.
type Network struct {
	mu        sync.Mutex
	exchanges map[domain.ExchangeID]*Exchange
}

// NewNetwork returns an empty network.
func NewNetwork() *Network {
	return &Network{exchanges: make(map[domain.ExchangeID]*Exchange)}
}

// Options tune a paper exchange.
type Options struct {
	// TakerFee is the fraction of gross output kept by the exchange on fills.
	TakerFee decimal.Decimal
	// WithdrawFees are deducted from every Send of that currency.
	WithdrawFees map[domain.Currency]decimal.Decimal
	// PendingPolls is how many status queries report a non-terminal status
	// before a transfer or order completes.
	PendingPolls int
}

// Add registers a new exchange on the network.
func (n *Network) Add(id domain.ExchangeID, opts Options) *Exchange {
	n.mu.Lock()
	defer n.mu.Unlock()
	ex := &Exchange{
		id:        id,
		net:       n,
		opts:      opts,
		balances:  make(map[domain.Currency]decimal.Decimal),
		books:     make(map[domain.Pair]domain.OrderBook),
		products:  make(map[domain.Pair]domain.Product),
		transfers: make(map[string]*record),
		deposits:  make(map[string]*record),
		orders:    make(map[string]*record),
	}
	n.exchanges[id] = ex
	return ex
}

func (n *Network) lookup(id domain.ExchangeID) (*Exchange, bool) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ex, ok := n.exchanges[id]
	return ex, ok
}

// record is a transfer, deposit or order that settles after a number of polls.
type record struct {
	amount    decimal.Decimal
	reference string
	remaining int
	settle    func()
	settled   bool
}

func (r *record) poll(pending, done string) string {
	if r.settled {
		return done
	}
	if r.remaining > 0 {
		r.remaining--
		return pending
	}
	r.settled = true
	if r.settle != nil {
		r.settle()
	}
	return done
}

// Exchange is one in-memory venue. It implements domain.ExchangeGateway.
type Exchange struct {
	id   domain.ExchangeID
	net  *Network
	opts Options

	mu        sync.Mutex
	balances  map[domain.Currency]decimal.Decimal
	books     map[domain.Pair]domain.OrderBook
	products  map[domain.Pair]domain.Product
	transfers map[string]*record
	deposits  map[string]*record
	orders    map[string]*record

	statusFailures int
	submitErr      error
}

var _ domain.ExchangeGateway = (*Exchange)(nil)

func (e *Exchange) ID() domain.ExchangeID { return e.id }

// SetBalance sets the spendable amount of c.
func (e *Exchange) SetBalance(c domain.Currency, amount decimal.Decimal) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.balances[c] = amount
}

// Balance returns the current amount of c.
func (e *Exchange) Balance(c domain.Currency) decimal.Decimal {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.balances[c]
}

// SetBook sets a one-level book for pair. A zero price leaves that side empty.
func (e *Exchange) SetBook(pair domain.Pair, bid, ask decimal.Decimal) {
	ob := domain.OrderBook{Exchange: e.id, Pair: pair}
	deep := decimal.NewFromInt(1_000_000)
	if bid.IsPositive() {
		ob.Bids = []domain.PriceLevel{{Price: bid, Size: deep}}
	}
	if ask.IsPositive() {
		ob.Asks = []domain.PriceLevel{{Price: ask, Size: deep}}
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	e.books[pair] = ob
	if _, ok := e.products[pair]; !ok {
		e.products[pair] = domain.Product{Exchange: e.id, Pair: pair}
	}
}

// SetProduct overrides product metadata for a pair.
func (e *Exchange) SetProduct(p domain.Product) {
	p.Exchange = e.id
	e.mu.Lock()
	defer e.mu.Unlock()
	e.products[p.Pair] = p
}

// FailStatusQueries makes the next n status queries fail as unavailable.
func (e *Exchange) FailStatusQueries(n int) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.statusFailures = n
}

// FailSubmissions makes Send and PlaceOrder return err until cleared with nil.
func (e *Exchange) FailSubmissions(err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.submitErr = err
}

func (e *Exchange) Products(ctx context.Context) ([]domain.Product, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Product, 0, len(e.products))
	for _, p := range e.products {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Pair.String() < out[j].Pair.String() })
	return out, nil
}

func (e *Exchange) Balances(ctx context.Context) ([]domain.Balance, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]domain.Balance, 0, len(e.balances))
	for c, amt := range e.balances {
		out = append(out, domain.Balance{Exchange: e.id, Currency: c, Amount: amt})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Currency < out[j].Currency })
	return out, nil
}

func (e *Exchange) OrderBook(ctx context.Context, pair domain.Pair, depth int) (domain.OrderBook, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderBook{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	ob, ok := e.books[pair]
	if !ok {
		// An unlisted pair is an empty book, not an error.
		return domain.OrderBook{Exchange: e.id, Pair: pair, Timestamp: time.Now()}, nil
	}
	if depth > 0 {
		ob.Bids = ob.Bids[:min(depth, len(ob.Bids))]
		ob.Asks = ob.Asks[:min(depth, len(ob.Asks))]
	}
	ob.Timestamp = time.Now()
	return ob, nil
}

func (e *Exchange) Address(ctx context.Context, c domain.Currency) (domain.Address, error) {
	if err := ctx.Err(); err != nil {
		return domain.Address{}, err
	}
	return domain.Address{
		Exchange: e.id,
		Currency: c,
		Value:    fmt.Sprintf("paper:%s:%s", e.id, c),
	}, nil
}

func (e *Exchange) Send(ctx context.Context, c domain.Currency, amount decimal.Decimal, to domain.Address) (domain.TransferHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.TransferHandle{}, err
	}
	if !amount.IsPositive() {
		return domain.TransferHandle{}, domain.NewGatewayError(e.id, "Send", domain.ErrValidation, fmt.Errorf("amount %s", amount))
	}
	dest, ok := e.net.lookup(to.Exchange)
	if !ok || to.Currency != c {
		return domain.TransferHandle{}, domain.NewGatewayError(e.id, "Send", domain.ErrValidation, fmt.Errorf("bad destination %q", to.Value))
	}

	e.mu.Lock()
	if e.submitErr != nil {
		err := e.submitErr
		e.mu.Unlock()
		return domain.TransferHandle{}, domain.NewGatewayError(e.id, "Send", domain.ErrGatewayUnavailable, err)
	}
	if e.balances[c].LessThan(amount) {
		e.mu.Unlock()
		return domain.TransferHandle{}, domain.NewGatewayError(e.id, "Send", domain.ErrValidation,
			fmt.Errorf("insufficient %s: have %s need %s", c, e.balances[c], amount))
	}
	e.balances[c] = e.balances[c].Sub(amount)
	arriving := domain.Truncate(amount.Sub(e.opts.WithdrawFees[c]))
	id := uuid.New().String()
	hash := "0x" + uuid.New().String()
	e.transfers[id] = &record{amount: amount, reference: hash, remaining: e.opts.PendingPolls}
	e.mu.Unlock()

	dest.incoming(c, arriving, hash)

	return domain.TransferHandle{Exchange: e.id, Currency: c, ID: id, SubmittedAt: time.Now()}, nil
}

func (e *Exchange) incoming(c domain.Currency, amount decimal.Decimal, hash string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.deposits[hash] = &record{
		amount:    amount,
		reference: hash,
		remaining: e.opts.PendingPolls,
		settle: func() {
			e.balances[c] = e.balances[c].Add(amount)
		},
	}
}

func (e *Exchange) statusFailure(op string) error {
	if e.statusFailures > 0 {
		e.statusFailures--
		return domain.NewGatewayError(e.id, op, domain.ErrGatewayUnavailable, fmt.Errorf("simulated outage"))
	}
	return nil
}

func (e *Exchange) SendStatus(ctx context.Context, c domain.Currency, transferID string) (domain.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.StatusReport{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.statusFailure("SendStatus"); err != nil {
		return domain.StatusReport{}, err
	}
	r, ok := e.transfers[transferID]
	if !ok {
		return domain.StatusReport{}, nil
	}
	return domain.StatusReport{
		Found:     true,
		Status:    r.poll(StatusPending, StatusCompleted),
		Amount:    r.amount,
		Reference: r.reference,
	}, nil
}

func (e *Exchange) ReceiveStatus(ctx context.Context, c domain.Currency, reference string) (domain.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.StatusReport{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.statusFailure("ReceiveStatus"); err != nil {
		return domain.StatusReport{}, err
	}
	r, ok := e.deposits[reference]
	if !ok {
		return domain.StatusReport{}, nil
	}
	return domain.StatusReport{
		Found:     true,
		Status:    r.poll(StatusPending, StatusCompleted),
		Amount:    r.amount,
		Reference: r.reference,
	}, nil
}

// PlaceOrder fills immediately against the top of book. The proceeds are
// credited once OrderStatus reports done.
func (e *Exchange) PlaceOrder(ctx context.Context, req domain.OrderRequest) (domain.OrderHandle, error) {
	if err := ctx.Err(); err != nil {
		return domain.OrderHandle{}, err
	}
	if !req.Amount.IsPositive() {
		return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrValidation, fmt.Errorf("amount %s", req.Amount))
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.submitErr != nil {
		return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrGatewayUnavailable, e.submitErr)
	}
	ob, ok := e.books[req.Pair]
	if !ok {
		return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrValidation, fmt.Errorf("no market %s", req.Pair))
	}
	spend, receive := req.Spends(), req.Receives()
	if e.balances[spend].LessThan(req.Amount) {
		return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrValidation,
			fmt.Errorf("insufficient %s: have %s need %s", spend, e.balances[spend], req.Amount))
	}

	var gross decimal.Decimal
	switch req.Side {
	case domain.SideSell:
		bid, ok := ob.BestBid()
		if !ok {
			return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrValidation, fmt.Errorf("no bids on %s", req.Pair))
		}
		gross = req.Amount.Mul(bid.Price)
	case domain.SideBuy:
		ask, ok := ob.BestAsk()
		if !ok {
			return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrValidation, fmt.Errorf("no asks on %s", req.Pair))
		}
		gross = domain.TruncDiv(req.Amount, ask.Price)
	default:
		return domain.OrderHandle{}, domain.NewGatewayError(e.id, "PlaceOrder", domain.ErrValidation, fmt.Errorf("side %q", req.Side))
	}
	gross = domain.Truncate(gross)
	out := domain.Truncate(gross.Sub(gross.Mul(e.opts.TakerFee)))

	e.balances[spend] = e.balances[spend].Sub(req.Amount)
	id := uuid.New().String()
	e.orders[id] = &record{
		amount:    out,
		reference: id,
		remaining: e.opts.PendingPolls,
		settle: func() {
			e.balances[receive] = e.balances[receive].Add(out)
		},
	}
	return domain.OrderHandle{Exchange: e.id, OrderID: id, SubmittedAt: time.Now()}, nil
}

func (e *Exchange) OrderStatus(ctx context.Context, orderID string) (domain.StatusReport, error) {
	if err := ctx.Err(); err != nil {
		return domain.StatusReport{}, err
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.statusFailure("OrderStatus"); err != nil {
		return domain.StatusReport{}, err
	}
	r, ok := e.orders[orderID]
	if !ok {
		return domain.StatusReport{}, nil
	}
	return domain.StatusReport{
		Found:     true,
		Status:    r.poll(StatusOpen, StatusDone),
		Amount:    r.amount,
		Reference: r.reference,
	}, nil
}
