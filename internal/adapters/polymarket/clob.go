package polymarket

// clob.go — libros de órdenes del CLOB.
//
// FetchOrderBooks lanza un goroutine por batch; el rate limiter de doWithRetry
// marca el ritmo, así que no hace falta semáforo.

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/alejandrodnm/polyrevert/internal/domain"
)

const (
	booksPath = "/books"
	batchSize = 20 // máx token_ids por request a /books
)

// FetchOrderBooks obtiene los orderbooks para los token_ids dados usando el endpoint batch.
func (c *Client) FetchOrderBooks(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	if len(tokenIDs) == 0 {
		return map[string]domain.OrderBook{}, nil
	}

	batches := splitBatches(tokenIDs, batchSize)

	type batchResult struct {
		books map[string]domain.OrderBook
		err   error
		idx   int
	}

	resultCh := make(chan batchResult, len(batches))
	var wg sync.WaitGroup

	for i, batch := range batches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			books, err := c.fetchBooksBatch(ctx, batch)
			resultCh <- batchResult{books: books, err: err, idx: i}
		}()
	}

	go func() {
		wg.Wait()
		close(resultCh)
	}()

	result := make(map[string]domain.OrderBook, len(tokenIDs))
	var firstErr error

	for r := range resultCh {
		if r.err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("clob.FetchOrderBooks batch %d: %w", r.idx, r.err)
			}
			continue
		}
		for k, v := range r.books {
			result[k] = v
		}
	}

	if firstErr != nil {
		return nil, firstErr
	}

	slog.Debug("order books fetched", "tokens", len(tokenIDs), "books", len(result))
	return result, nil
}

// YesMarks cotiza cada instrumento con el midpoint de su libro, expresado
// siempre como precio YES. Si el instrumento trae solo NoTokenID, la cotización
// es 1 − mid del libro NO. Los libros vacíos no aparecen en el resultado.
// Implementa ports.MarkProvider.
func (c *Client) YesMarks(ctx context.Context, instruments []domain.Instrument) (map[string]float64, error) {
	tokenIDs := make([]string, 0, len(instruments))
	for _, inst := range instruments {
		if tok := markToken(inst); tok != "" {
			tokenIDs = append(tokenIDs, tok)
		}
	}

	books, err := c.FetchOrderBooks(ctx, tokenIDs)
	if err != nil {
		return nil, fmt.Errorf("clob.YesMarks: %w", err)
	}

	marks := make(map[string]float64, len(instruments))
	for _, inst := range instruments {
		book, ok := books[markToken(inst)]
		if !ok {
			continue
		}
		mid := book.MarkPrice(0)
		if mid <= 0 {
			continue
		}
		if inst.YesTokenID == "" {
			mid = 1 - mid
		}
		marks[inst.ID] = mid
	}
	return marks, nil
}

// markToken devuelve el token cuyo libro se usa para cotizar el instrumento.
func markToken(inst domain.Instrument) string {
	if inst.YesTokenID != "" {
		return inst.YesTokenID
	}
	return inst.NoTokenID
}

// splitBatches divide tokenIDs en slices de tamaño máximo size.
func splitBatches(tokenIDs []string, size int) [][]string {
	if size <= 0 {
		size = batchSize
	}
	batches := make([][]string, 0, (len(tokenIDs)+size-1)/size)
	for i := 0; i < len(tokenIDs); i += size {
		end := min(i+size, len(tokenIDs))
		batches = append(batches, tokenIDs[i:end])
	}
	return batches
}

// fetchBooksBatch hace un POST /books para un batch de token_ids.
func (c *Client) fetchBooksBatch(ctx context.Context, tokenIDs []string) (map[string]domain.OrderBook, error) {
	body := make([]orderBookRequest, len(tokenIDs))
	for i, id := range tokenIDs {
		body[i] = orderBookRequest{TokenID: id}
	}

	var resp []orderBookResponse
	if err := c.post(ctx, c.booksLimiter, c.clobBase+booksPath, body, &resp); err != nil {
		return nil, fmt.Errorf("POST /books: %w", err)
	}

	return mapOrderBooks(resp), nil
}
