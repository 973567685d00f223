package domain

// OrderBook es el libro de órdenes de un token del CLOB. Solo se usa para
// derivar la cotización de marca de una posición abierta.
type OrderBook struct {
	TokenID string
	Bids    []BookEntry // ordenados mayor a menor precio
	Asks    []BookEntry // ordenados menor a mayor precio
}

// BookEntry es un nivel de precio en el orderbook.
type BookEntry struct {
	Price float64
	Size  float64
}

// BestBid devuelve el mejor precio de compra (mayor bid).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestBid() float64 {
	if len(ob.Bids) == 0 {
		return 0
	}
	return ob.Bids[0].Price
}

// BestAsk devuelve el mejor precio de venta (menor ask).
// Devuelve 0 si el book está vacío.
func (ob OrderBook) BestAsk() float64 {
	if len(ob.Asks) == 0 {
		return 0
	}
	return ob.Asks[0].Price
}

// Midpoint devuelve el punto medio entre best bid y best ask.
func (ob OrderBook) Midpoint() float64 {
	bid := ob.BestBid()
	ask := ob.BestAsk()
	if bid == 0 || ask == 0 {
		return 0
	}
	return (bid + ask) / 2
}

// MarkPrice devuelve el precio de referencia del token: el midpoint si el libro
// tiene ambos lados, el único lado disponible si no, o fallback si está vacío.
func (ob OrderBook) MarkPrice(fallback float64) float64 {
	if mid := ob.Midpoint(); mid > 0 {
		return mid
	}
	if bid := ob.BestBid(); bid > 0 {
		return bid
	}
	if ask := ob.BestAsk(); ask > 0 {
		return ask
	}
	return fallback
}
