// Package report aggregates a session's fill history into an
// ExecutionReport.
package report

import (
	"log/slog"
	"math"
	"sort"
	"time"

	"github.com/alanyoungcy/execsim/internal/domain"
)

// Fixed dashboard values carried in every report. They are not computed.
const (
	PlaceholderExecutionQuality = 85.0
	PlaceholderUptimePct        = 99.9
)

// Input is everything a report is built from.
type Input struct {
	Session    domain.TradingSession
	End        time.Time
	Orders     []domain.TradeOrder
	Fills      []domain.ExecutionResult
	RiskEvents []domain.RiskEvent
	Halted     bool
}

// Generator builds ExecutionReports.
type Generator struct {
	logger *slog.Logger
}

// NewGenerator creates a Generator.
func NewGenerator(logger *slog.Logger) *Generator {
	return &Generator{logger: logger.With(slog.String("component", "report"))}
}

// Generate builds the report. Fill metrics, positions and PnL come from the
// fill history alone; positions are marked at the mid of each symbol's last
// fill.
func (g *Generator) Generate(in Input) domain.ExecutionReport {
	r := domain.ExecutionReport{
		SessionID:   in.Session.ID,
		StartTime:   in.Session.StartTime,
		EndTime:     in.End,
		ByAlgorithm: make(map[domain.Algorithm]domain.AlgorithmStats),
		ByVenue:     make(map[string]domain.VenueStats),
		Placeholders: domain.Placeholders{
			ExecutionQuality: PlaceholderExecutionQuality,
			UptimePct:        PlaceholderUptimePct,
		},
	}
	if !in.End.IsZero() && !in.Session.StartTime.IsZero() {
		r.Duration = in.End.Sub(in.Session.StartTime)
	}

	countOrders(&r, in.Orders)
	aggregateFills(&r, in.Fills)
	r.Risk = riskAnalysis(in.Fills)
	r.Risk.RiskEvents = len(in.RiskEvents)
	r.Risk.Halted = in.Halted

	g.logger.Info("report: generated",
		slog.String("session_id", r.SessionID),
		slog.Int("orders", r.TotalOrders),
		slog.Int("fills", r.TotalFills),
		slog.Float64("volume", r.TotalVolume),
		slog.Float64("total_costs", r.Costs.Total),
	)
	return r
}

func countOrders(r *domain.ExecutionReport, orders []domain.TradeOrder) {
	r.TotalOrders = len(orders)
	for _, o := range orders {
		switch o.Status {
		case domain.OrderStatusFilled:
			r.FilledOrders++
		case domain.OrderStatusCancelled:
			r.CancelledOrders++
		case domain.OrderStatusRejected:
			r.RejectedOrders++
		case domain.OrderStatusExpired:
			r.ExpiredOrders++
		}
		if filled := o.Filled(); filled > 0 && o.Remaining > 0 {
			r.PartialOrders++
		}

		stats := r.ByAlgorithm[o.Algorithm]
		stats.Algorithm = o.Algorithm
		stats.Orders++
		r.ByAlgorithm[o.Algorithm] = stats
	}
}

func aggregateFills(r *domain.ExecutionReport, fills []domain.ExecutionResult) {
	var slippage, impact float64
	var latency time.Duration
	venueSlippage := make(map[string]float64)
	venueLatency := make(map[string]time.Duration)
	algoSlippage := make(map[domain.Algorithm]float64)
	algoImpact := make(map[domain.Algorithm]float64)

	for _, f := range fills {
		notional := f.Notional()
		r.TotalFills++
		r.TotalVolume += f.Quantity
		r.TotalNotional += notional
		slippage += f.SlippageBps
		impact += f.MarketImpactBps
		latency += f.Latency

		a := r.ByAlgorithm[f.Algorithm]
		a.Algorithm = f.Algorithm
		a.Fills++
		a.Volume += f.Quantity
		a.Notional += notional
		a.TotalCosts += f.Costs.Total
		r.ByAlgorithm[f.Algorithm] = a
		algoSlippage[f.Algorithm] += f.SlippageBps
		algoImpact[f.Algorithm] += f.MarketImpactBps

		v := r.ByVenue[f.Venue]
		v.Venue = f.Venue
		v.Fills++
		v.Volume += f.Quantity
		v.Notional += notional
		r.ByVenue[f.Venue] = v
		venueSlippage[f.Venue] += f.SlippageBps
		venueLatency[f.Venue] += f.Latency

		c := &r.Costs
		c.Commission += f.Costs.Commission
		c.ExchangeFees += f.Costs.ExchangeFees
		c.RegulatoryFees += f.Costs.RegulatoryFees
		c.TotalExplicit += f.Costs.TotalExplicit
		c.SpreadCost += f.Costs.SpreadCost
		c.MarketImpactCost += f.Costs.MarketImpactCost
		c.DelayCost += f.Costs.DelayCost
		c.TotalImplicit += f.Costs.TotalImplicit
		c.Total += f.Costs.Total
	}

	if n := r.TotalFills; n > 0 {
		r.AvgFillSize = r.TotalVolume / float64(n)
		r.AvgSlippageBps = slippage / float64(n)
		r.AvgMarketImpactBps = impact / float64(n)
		r.AvgLatency = latency / time.Duration(n)
	}
	if r.TotalNotional > 0 {
		r.Costs.AvgCostBps = r.Costs.Total / r.TotalNotional * 10_000
	}

	for name, a := range r.ByAlgorithm {
		if a.Fills > 0 {
			a.AvgSlippageBps = algoSlippage[name] / float64(a.Fills)
			a.AvgImpactBps = algoImpact[name] / float64(a.Fills)
		}
		if a.Volume > 0 {
			a.AvgPrice = a.Notional / a.Volume
		}
		if a.Notional > 0 {
			a.AvgCostBps = a.TotalCosts / a.Notional * 10_000
		}
		r.ByAlgorithm[name] = a
	}
	for name, v := range r.ByVenue {
		v.AvgSlippageBps = venueSlippage[name] / float64(v.Fills)
		v.AvgLatency = venueLatency[name] / time.Duration(v.Fills)
		r.ByVenue[name] = v
	}
}

func riskAnalysis(fills []domain.ExecutionResult) domain.RiskAnalysis {
	ra := domain.RiskAnalysis{Positions: make(map[string]float64)}
	marks := make(map[string]float64)
	var cash float64
	for _, f := range fills {
		ra.Positions[f.Symbol] += f.SignedQuantity()
		marks[f.Symbol] = f.MidPrice
		cash -= f.SignedQuantity()*f.Price + f.Costs.TotalExplicit
	}

	symbols := make([]string, 0, len(ra.Positions))
	for sym := range ra.Positions {
		symbols = append(symbols, sym)
	}
	sort.Strings(symbols)

	ra.PnL = cash
	for _, sym := range symbols {
		qty := ra.Positions[sym]
		value := qty * marks[sym]
		ra.GrossExposure += math.Abs(value)
		ra.NetExposure += value
		ra.PnL += value
		if math.Abs(qty) > ra.LargestAbsQty {
			ra.LargestAbsQty = math.Abs(qty)
			ra.LargestSymbol = sym
		}
	}
	return ra
}
