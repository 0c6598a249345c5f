/*
Package pnl is a transaction valuation and profit-and-loss engine for an
investment back-office.

Given a time-ordered stream of trading transactions and a set of price and
FX observations, it computes position balances on a report date, cost-basis
consumption under the average cost (AVCO) and first-in-first-out (FIFO)
methods, realised and unrealised P&L split into price, FX and fixed
components, and time-weighted performance over a sequence of calendar
periods.

The engine is read-only. It consumes transactions, instruments, currencies,
accounts and quotes through small ports (see Sources) and returns report
values. A build is a synchronous computation: it either returns a fully
populated report or an error.

# Pipeline

A build runs the following stages, in order:

  - normalise: filter and sort transactions, expand TRANSFER and
    FX_TRANSFER into elementary virtual transactions and classify each by
    case relative to the report date.
  - match: compute, for every lot opening transaction, the fraction already
    closed under AVCO and FIFO (the multiplier).
  - valuate: price every virtual transaction in report currency and
    compute its P&L vector.
  - aggregate: group valuated transactions into report items.

Performance reports reuse the balance pipeline on every period boundary.

# Currencies and FX

An FX rate is the value of one unit of a currency expressed in the system
currency. Values in report currency (fields with a Res suffix) use the
cross rate fx(ccy)/fx(report currency). Values in local currency (Loc
suffix) are expressed in the instrument pricing currency.

# Numbers

All report numbers are rounded to 10 significant digits. Arithmetic
failures such as a division by zero yield 0, never NaN or infinity.
*/
package pnl
