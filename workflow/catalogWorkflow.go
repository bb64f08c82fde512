package workflow

import (
	"context"
	"errors"
	"strconv"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/sirupsen/logrus"
)

const catalogModule = "catalogWorkflow.go"

var ErrDuplicateRecord = errors.New("record already exists")

func (s *Service) CreateManufacturer(ctx context.Context, input models.NewManufacturer) (*models.Manufacturer, error) {
	manufacturer, err := input.ToModel()
	if err != nil {
		return nil, err
	}
	var created models.Manufacturer
	err = s.run(ctx, catalogModule, "CreateManufacturer", input, func(uow *UnitOfWork) error {
		created = *manufacturer
		if err := uow.Tx.Create(&created).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return ErrDuplicateRecord
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) CreateSupplier(ctx context.Context, input models.NewSupplier) (*models.Supplier, error) {
	supplier, err := input.ToModel()
	if err != nil {
		return nil, err
	}
	var created models.Supplier
	err = s.run(ctx, catalogModule, "CreateSupplier", input, func(uow *UnitOfWork) error {
		created = *supplier
		if err := uow.Tx.Create(&created).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return ErrDuplicateRecord
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) CreateCategory(ctx context.Context, input models.NewCategory) (*models.Category, error) {
	category, err := input.ToModel()
	if err != nil {
		return nil, err
	}
	var created models.Category
	err = s.run(ctx, catalogModule, "CreateCategory", input, func(uow *UnitOfWork) error {
		created = *category
		if err := uow.Tx.Create(&created).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return ErrDuplicateRecord
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

func (s *Service) CreateProduct(ctx context.Context, input models.NewProduct) (*models.Product, error) {
	var product *models.Product
	err := s.run(ctx, catalogModule, "CreateProduct", input, func(uow *UnitOfWork) error {
		var err error
		product, err = input.ToModel(uow.Tx)
		if err != nil {
			return err
		}
		if err := uow.Tx.Create(product).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return ErrDuplicateRecord
			}
			return err
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return product, nil
}

// GetProduct reads through the Redis cache. Products are immutable once created.
func (s *Service) GetProduct(ctx context.Context, productId int) (*models.Product, error) {
	cached, err := utils.RetrieveRedis[models.Product](ctx, productId)
	if err != nil {
		config.LogError(s.Logger, catalogModule, "GetProduct", "RetrieveRedis", productId, err)
	}
	if cached != nil {
		return cached, nil
	}
	product, err := models.FetchProduct(s.DB.WithContext(ctx), productId)
	if err != nil {
		return nil, err
	}
	if err := utils.StoreRedis(ctx, product, productId); err != nil {
		config.LogError(s.Logger, catalogModule, "GetProduct", "StoreRedis", productId, err)
	}
	return product, nil
}

// CreateRecipePlan stores a new version of the product's recipe. With Activate set, every other plan
// of the product is deactivated in the same transaction, so readers always see exactly one active plan.
func (s *Service) CreateRecipePlan(ctx context.Context, input models.NewRecipePlan) (*models.RecipePlan, error) {
	var plan *models.RecipePlan
	today := s.today()
	err := s.run(ctx, catalogModule, "CreateRecipePlan", input, func(uow *UnitOfWork) error {
		tx := uow.Tx
		if _, err := models.LockProduct(tx, input.ProductId); err != nil {
			return err
		}
		var err error
		plan, err = input.ToModel(tx, today)
		if err != nil {
			return err
		}
		plan.VersionNumber, err = models.NextRecipeVersion(tx, input.ProductId)
		if err != nil {
			return err
		}
		if err := tx.Create(plan).Error; err != nil {
			return err
		}
		if input.Activate {
			if err := models.ActivateRecipePlan(tx, input.ProductId, plan.ID); err != nil {
				return err
			}
			plan.IsActive = true
		}
		return models.PublishEvent(uow.Ctx, tx, models.EventRecipePlanCreated, models.AggregateRecipePlan, strconv.Itoa(plan.ID), today, plan)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"field":      "CreateRecipePlan",
		"product_id": plan.ProductId,
		"plan_id":    plan.ID,
		"version":    plan.VersionNumber,
		"is_active":  plan.IsActive,
	}).Info("recipe plan created")
	return plan, nil
}

// ResolveActiveRecipe returns the product's single active plan with its lines, or NoActiveRecipe.
func (s *Service) ResolveActiveRecipe(ctx context.Context, productId int) (*models.RecipePlan, error) {
	if _, err := models.FetchProduct(s.DB.WithContext(ctx), productId); err != nil {
		return nil, err
	}
	return models.FetchActiveRecipe(s.DB.WithContext(ctx), productId)
}
