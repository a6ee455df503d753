package services

import (
	"context"
	"errors"
	"strings"

	"github.com/google/uuid"

	"kantin/internal/domain"
	"kantin/internal/repos"
)

var (
	ErrInvalidProduct  = errors.New("product needs a name, a positive price and non-negative stock")
	ErrInvalidCategory = errors.New("category name is required")
)

const DefaultCategory = "Lainnya"

// CatalogService is the seller-facing product catalog. Every mutation
// checks that the product belongs to the acting seller.
type CatalogService struct {
	Cats  *repos.CategoryRepo
	Prods *repos.ProductRepo
}

func NewCatalogService(cats *repos.CategoryRepo, prods *repos.ProductRepo) *CatalogService {
	return &CatalogService{Cats: cats, Prods: prods}
}

func (s *CatalogService) ListCategories(ctx context.Context) ([]domain.Category, error) {
	return s.Cats.List(ctx)
}

func (s *CatalogService) CreateCategory(ctx context.Context, actor *domain.User, name, icon string) (domain.Category, error) {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return domain.Category{}, err
	}
	c := domain.Category{ID: "cat-" + uuid.NewString(), Name: strings.TrimSpace(name), Icon: icon}
	if c.Name == "" {
		return domain.Category{}, ErrInvalidCategory
	}
	return c, s.Cats.Create(ctx, c)
}

func (s *CatalogService) DeleteCategory(ctx context.Context, actor *domain.User, id string) error {
	if err := requireRole(actor, domain.RoleAdmin); err != nil {
		return err
	}
	return s.Cats.Delete(ctx, id)
}

func (s *CatalogService) ListOwn(ctx context.Context, actor *domain.User) ([]domain.Product, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return nil, err
	}
	return s.Prods.ListBySeller(ctx, actor.ID)
}

// owned loads id and fails with ErrForbidden when it is not actor's product.
func (s *CatalogService) owned(ctx context.Context, actor *domain.User, id string) (domain.Product, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return domain.Product{}, err
	}
	p, err := s.Prods.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	if p.SellerID != actor.ID {
		return domain.Product{}, ErrForbidden
	}
	return p, nil
}

// Save creates the product when ID is empty, otherwise updates it.
func (s *CatalogService) Save(ctx context.Context, actor *domain.User, in domain.Product) (domain.Product, error) {
	if err := requireRole(actor, domain.RoleSeller); err != nil {
		return domain.Product{}, err
	}
	in.Name = strings.TrimSpace(in.Name)
	in.Category = strings.TrimSpace(in.Category)
	if in.Name == "" || in.Price <= 0 || in.Stock < 0 {
		return domain.Product{}, ErrInvalidProduct
	}
	if in.Category == "" {
		in.Category = DefaultCategory
	}

	if in.ID == "" {
		in.ID = "prod-" + uuid.NewString()
		in.SellerID = actor.ID
		in.Active = true
		if err := s.Prods.Create(ctx, in); err != nil {
			return domain.Product{}, err
		}
		return s.Prods.Get(ctx, in.ID)
	}

	cur, err := s.owned(ctx, actor, in.ID)
	if err != nil {
		return domain.Product{}, err
	}
	cur.Name, cur.Description, cur.Price, cur.Stock = in.Name, in.Description, in.Price, in.Stock
	cur.Category, cur.ImageURL, cur.Active = in.Category, in.ImageURL, in.Active
	if err := s.Prods.Update(ctx, cur); err != nil {
		return domain.Product{}, err
	}
	return s.Prods.Get(ctx, cur.ID)
}

func (s *CatalogService) Delete(ctx context.Context, actor *domain.User, id string) error {
	if _, err := s.owned(ctx, actor, id); err != nil {
		return err
	}
	return s.Prods.Delete(ctx, id)
}

func (s *CatalogService) ToggleActive(ctx context.Context, actor *domain.User, id string) (domain.Product, error) {
	p, err := s.owned(ctx, actor, id)
	if err != nil {
		return domain.Product{}, err
	}
	if err := s.Prods.SetActive(ctx, id, !p.Active); err != nil {
		return domain.Product{}, err
	}
	p.Active = !p.Active
	return p, nil
}
