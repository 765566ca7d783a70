package directus

import (
	"context"
	"fmt"

	"github.com/GueYatma/koktek-front/internal/entity"
	"github.com/GueYatma/koktek-front/internal/repository"
)

const collectionCustomers = "customers"

type customerRepository struct {
	c *Client
}

// NewCustomerRepository creates a CustomerRepository backed by the item API.
func NewCustomerRepository(c *Client) repository.CustomerRepository {
	return &customerRepository{c: c}
}

func (r *customerRepository) FindByEmail(ctx context.Context, email string) (*entity.CustomerRecord, error) {
	params := eq("email", email)
	params.Set("limit", "1")
	rows, err := list[entity.CustomerRecord](ctx, r.c, collectionCustomers, params)
	if err != nil {
		return nil, fmt.Errorf("failed to look up customer: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}

func (r *customerRepository) Create(ctx context.Context, customer entity.CustomerRecord) (*entity.CustomerRecord, error) {
	created, err := createOne[entity.CustomerRecord](ctx, r.c, collectionCustomers, customer)
	if err != nil {
		return nil, fmt.Errorf("failed to create customer: %w", err)
	}
	return created, nil
}
