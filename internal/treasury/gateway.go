package treasury

import "context"

// Gateway flattens the Money-based Service API into the plain signatures the
// deal ledger consumes, so the ledger package never imports treasury types.
type Gateway struct {
	svc Service
}

func NewGateway(svc Service) *Gateway { return &Gateway{svc: svc} }

func (g *Gateway) Allowance(ctx context.Context, owner, spender, asset string) (int64, error) {
	m, err := g.svc.Allowance(ctx, owner, spender, asset)
	if err != nil {
		return 0, err
	}
	return m.Amount, nil
}

func (g *Gateway) Transfer(ctx context.Context, from, to, asset string, amount int64) (string, error) {
	p, err := g.svc.Transfer(ctx, from, to, Money{Asset: asset, Amount: amount})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}

func (g *Gateway) TransferFrom(ctx context.Context, spender, from, to, asset string, amount int64) (string, error) {
	p, err := g.svc.TransferFrom(ctx, spender, from, to, Money{Asset: asset, Amount: amount})
	if err != nil {
		return "", err
	}
	return p.ID, nil
}
