/*
mutator.go - Stock movements

PURPOSE:
  StockMutator is the only writer of the transaction ledger. Every movement
  appends exactly one transaction and adjusts exactly one stock counter, and
  both happen inside one store transaction or not at all.

OPERATIONS:
  Receive:  +quantity, no project, no upper bound
  Withdraw: -quantity, project required, fails if stock < quantity
  Return:   +quantity, project required, may exceed what was withdrawn

WITHDRAW RACE:
  Reading stock and then decrementing it is a check-then-act pair. Two
  things close the window:
  1. The read and both writes run inside TxStore.WithTx. The SQL stores
     lock the material row (or serialize writers) for that transaction.
  2. AdjustStock is a conditional update that refuses to go below zero,
     so a concurrent withdrawal that slipped past the read still fails
     with InsufficientStock and rolls back its ledger append.

RECEIVE AND PROJECTS:
  A RECEIVE is never attributed to a project. Reports only see project
  movements, so receipts can never leak into project cost.
*/
package inventory

import (
	"context"
	"math"
	"time"

	"github.com/sirupsen/logrus"
)

// StockMutator applies stock movements.
type StockMutator struct {
	Store TxStore
	Now   func() time.Time
	Log   logrus.FieldLogger
}

func NewStockMutator(store TxStore, log logrus.FieldLogger) *StockMutator {
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &StockMutator{Store: store, Now: time.Now, Log: log}
}

// Receive books quantity units of a material into stock.
func (m *StockMutator) Receive(ctx context.Context, in ReceiveInput) (Transaction, error) {
	if err := Validate(in); err != nil {
		return Transaction{}, err
	}
	return m.apply(ctx, movement{
		materialID: in.MaterialID,
		quantity:   in.Quantity,
		txType:     TxReceive,
		notes:      in.Notes,
	})
}

// Withdraw books quantity units out of stock for a project.
func (m *StockMutator) Withdraw(ctx context.Context, in WithdrawInput) (Transaction, error) {
	if err := Validate(in); err != nil {
		return Transaction{}, err
	}
	return m.apply(ctx, movement{
		materialID: in.MaterialID,
		projectID:  ProjectRef(in.ProjectID),
		quantity:   in.Quantity,
		txType:     TxWithdraw,
		notes:      in.Notes,
	})
}

// Return books quantity units back into stock from a project.
func (m *StockMutator) Return(ctx context.Context, in ReturnInput) (Transaction, error) {
	if err := Validate(in); err != nil {
		return Transaction{}, err
	}
	return m.apply(ctx, movement{
		materialID: in.MaterialID,
		projectID:  ProjectRef(in.ProjectID),
		quantity:   in.Quantity,
		txType:     TxReturn,
		notes:      in.Notes,
	})
}

// =============================================================================
// INTERNALS
// =============================================================================

type movement struct {
	materialID MaterialID
	projectID  *ProjectID
	quantity   int64
	txType     TxType
	notes      string
}

func (m *StockMutator) apply(ctx context.Context, mv movement) (Transaction, error) {
	if mv.txType.RequiresProject() != (mv.projectID != nil) {
		return Transaction{}, invalidField("projectId", "must be set for WITHDRAW and RETURN only")
	}

	var out Transaction
	err := m.Store.WithTx(ctx, func(s Store) error {
		mat, err := s.GetMaterial(ctx, mv.materialID)
		if err != nil {
			return err
		}
		if mv.projectID != nil {
			if _, err := s.GetProject(ctx, *mv.projectID); err != nil {
				return err
			}
		}

		if mv.txType == TxWithdraw {
			m.Log.WithFields(logrus.Fields{
				"material_id": mat.ID,
				"stock":       mat.Stock,
				"requested":   mv.quantity,
			}).Debug("withdraw stock check")

			if mat.Stock < mv.quantity {
				return &InsufficientStockError{
					MaterialID: mat.ID,
					Available:  mat.Stock,
					Requested:  mv.quantity,
				}
			}
		}

		if mv.txType.Sign() > 0 && mat.Stock > math.MaxInt64-mv.quantity {
			return invalidField("quantity", "would overflow the stock counter")
		}

		tx, err := s.AppendTransaction(ctx, Transaction{
			MaterialID: mat.ID,
			ProjectID:  mv.projectID,
			Quantity:   mv.quantity,
			Type:       mv.txType,
			Notes:      mv.notes,
			CreatedAt:  m.now(),
		})
		if err != nil {
			return err
		}

		if _, err := s.AdjustStock(ctx, mat.ID, tx.Delta()); err != nil {
			return err
		}

		out = tx
		return nil
	})
	if err != nil {
		return Transaction{}, wrapStore("apply "+string(mv.txType), err)
	}
	return out, nil
}

func (m *StockMutator) now() time.Time {
	if m.Now == nil {
		return time.Now().UTC()
	}
	return m.Now().UTC()
}
