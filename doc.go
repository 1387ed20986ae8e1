// Package holdings provides the position ledger and multi-currency valuation
// engine of a personal finance tracker.
//
// The core functionalities include:
//   - Ledger Management: each tracked asset owns an ordered list of buy and
//     sell events. Quantity and cost basis are never edited by hand, they are
//     recomputed from the full event list after every change.
//   - Rate Tables: exchange rates are loaded as a single consistent snapshot,
//     every code expressed against one pivot currency. Tables are immutable
//     values swapped atomically on refresh.
//   - Conversion: amounts are converted between any two codes of a table by
//     triangulating through the pivot.
//   - Snapshot vs Live Valuation: an event records its value in the report
//     currency once, at creation time, and that figure never drifts. Current
//     value, profit/loss and net worth always use the latest rates.
//   - Recalculation: the Engine applies event mutations and persists the
//     recomputed aggregate as one atomic unit, serialized per position.
//
// Storage, rate and price providers are collaborators plugged in through the
// Store, RateSource and PriceSource interfaces; see the store and provider
// packages for implementations.
package holdings
