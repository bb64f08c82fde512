package workflow

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const ledgerModule = "ingredientWorkflow.go"

// DefineIngredient creates the ingredient, its first formulation and, for compounds, the material lines.
func (s *Service) DefineIngredient(ctx context.Context, input models.NewIngredient) (*models.Ingredient, error) {
	if err := checkActingSupplier(ctx, input.SupplierId); err != nil {
		return nil, err
	}
	var ingredient *models.Ingredient
	err := s.run(ctx, ledgerModule, "DefineIngredient", input, func(uow *UnitOfWork) error {
		tx := uow.Tx
		var err error
		ingredient, err = input.ToModel(tx)
		if err != nil {
			return err
		}
		if err := tx.Create(ingredient).Error; err != nil {
			return err
		}
		formulationInput := input.Formulation
		formulation, err := formulationInput.ToModel(tx, ingredient, s.Settings.Location)
		if err != nil {
			return err
		}
		if err := tx.Create(formulation).Error; err != nil {
			return err
		}
		ingredient.Formulations = []models.Formulation{*formulation}
		return models.PublishEvent(uow.Ctx, tx, models.EventIngredientDefined, models.AggregateIngredient, strconv.Itoa(ingredient.ID), s.today(), ingredient)
	})
	if err != nil {
		return nil, err
	}
	return ingredient, nil
}

// AddFormulation adds a later pricing interval. An open-ended earlier interval is closed the day
// before the new one starts; any remaining overlap is InvalidFormulation.
func (s *Service) AddFormulation(ctx context.Context, ingredientId int, input models.NewFormulation) (*models.Formulation, error) {
	var formulation *models.Formulation
	err := s.run(ctx, ledgerModule, "AddFormulation", input, func(uow *UnitOfWork) error {
		tx := uow.Tx
		ingredient, err := models.LockIngredient(tx, ingredientId)
		if err != nil {
			return err
		}
		if err := checkActingSupplier(ctx, ingredient.SupplierId); err != nil {
			return err
		}
		attempt := input
		formulation, err = attempt.ToModel(tx, ingredient, s.Settings.Location)
		if err != nil {
			return err
		}
		if err := models.SupersedeOpenFormulations(tx, formulation); err != nil {
			return err
		}
		if err := tx.Create(formulation).Error; err != nil {
			return err
		}
		return models.PublishEvent(uow.Ctx, tx, models.EventFormulationAdded, models.AggregateIngredient, strconv.Itoa(ingredientId), s.today(), formulation)
	})
	if err != nil {
		return nil, err
	}
	if err := utils.RemoveRedis[models.Ingredient](ctx, ingredientId); err != nil {
		config.LogError(s.Logger, ledgerModule, "AddFormulation", "RemoveRedis", ingredientId, err)
	}
	return formulation, nil
}

// GetIngredient returns the ingredient with all formulations, reading through the Redis cache.
func (s *Service) GetIngredient(ctx context.Context, ingredientId int) (*models.Ingredient, error) {
	cached, err := utils.RetrieveRedis[models.Ingredient](ctx, ingredientId)
	if err != nil {
		config.LogError(s.Logger, ledgerModule, "GetIngredient", "RetrieveRedis", ingredientId, err)
	}
	if cached != nil {
		return cached, nil
	}
	var ingredient models.Ingredient
	err = s.DB.WithContext(ctx).
		Preload("Formulations", func(db *gorm.DB) *gorm.DB { return db.Order("effective_start_date ASC") }).
		Preload("Formulations.Materials").
		Where("id = ?", ingredientId).
		First(&ingredient).Error
	if err != nil {
		if utils.IsRecordNotFound(err) {
			return nil, fmt.Errorf("ingredient %d: %w", ingredientId, utils.ErrorRecordNotFound)
		}
		return nil, err
	}
	if err := utils.StoreRedis(ctx, &ingredient, ingredientId); err != nil {
		config.LogError(s.Logger, ledgerModule, "GetIngredient", "StoreRedis", ingredientId, err)
	}
	return &ingredient, nil
}

// AdmitIngredientBatch receives a lot into inventory with on_hand_oz equal to its quantity. The lot
// must expire no earlier than today plus the minimum shelf life.
func (s *Service) AdmitIngredientBatch(ctx context.Context, input models.NewIngredientBatch) (*models.IngredientBatch, error) {
	if err := checkActingSupplier(ctx, input.SupplierId); err != nil {
		return nil, err
	}
	rule := models.AdmissionRule{Today: s.today(), MinimumDays: s.Settings.ShelfLifeMinDays}
	var lot *models.IngredientBatch
	err := s.run(ctx, ledgerModule, "AdmitIngredientBatch", input, func(uow *UnitOfWork) error {
		tx := uow.Tx
		attempt := input
		var err error
		lot, err = attempt.ToModel(tx, rule, s.Settings.Location)
		if err != nil {
			return err
		}
		if err := tx.Create(lot).Error; err != nil {
			if utils.IsDuplicateKeyErr(err) {
				return models.NewDuplicateBatchLabel(lot.LotNumber)
			}
			return err
		}
		return models.PublishEvent(uow.Ctx, tx, models.EventIngredientLotAdmitted, models.AggregateIngredientBatch, lot.LotNumber, rule.Today, lot)
	})
	if err != nil {
		return nil, err
	}
	s.Logger.WithFields(logrus.Fields{
		"field":           "AdmitIngredientBatch",
		"lot_number":      lot.LotNumber,
		"quantity":        lot.Quantity.String(),
		"expiration_date": utils.FormatDate(lot.ExpirationDate),
	}).Info("ingredient lot admitted")
	return lot, nil
}

// ListEligibleLots returns lots of the ingredient with stock left that have not expired, earliest
// expiration first. A nil manufacturerId lists supplier-held stock.
func (s *Service) ListEligibleLots(ctx context.Context, ingredientId int, manufacturerId *string) ([]models.IngredientBatch, error) {
	return models.EligibleLots(s.DB.WithContext(ctx), ingredientId, manufacturerId, s.today())
}

// RecipeLineLots is one recipe line with its requirement for a run and the lots that could cover it.
type RecipeLineLots struct {
	IngredientId    int                      `json:"ingredient_id"`
	QuantityPerUnit decimal.Decimal          `json:"quantity_per_unit"`
	Required        decimal.Decimal          `json:"required"`
	Available       decimal.Decimal          `json:"available"`
	Lots            []models.IngredientBatch `json:"lots"`
}

// ListEligibleLotsForRecipe lists, per line of the active recipe, the quantity needed for producedUnits
// and the manufacturer's eligible lots. It does not choose lots.
func (s *Service) ListEligibleLotsForRecipe(ctx context.Context, productId int, manufacturerId string, producedUnits int) ([]RecipeLineLots, error) {
	db := s.DB.WithContext(ctx)
	product, err := models.FetchProduct(db, productId)
	if err != nil {
		return nil, err
	}
	plan, err := models.FetchActiveRecipe(db, productId)
	if err != nil {
		return nil, err
	}
	if !product.IsValidBatchSize(producedUnits) {
		return nil, models.NewInvalidBatchSize(productId, producedUnits, product.StandardBatchSize)
	}
	today := s.today()
	result := make([]RecipeLineLots, 0, len(plan.Ingredients))
	for _, line := range plan.Ingredients {
		lots, err := models.EligibleLots(db, line.IngredientId, &manufacturerId, today)
		if err != nil {
			return nil, err
		}
		available := decimal.Zero
		for _, lot := range lots {
			available = available.Add(lot.OnHandOz)
		}
		result = append(result, RecipeLineLots{
			IngredientId:    line.IngredientId,
			QuantityPerUnit: line.QuantityRequired,
			Required:        line.Requirement(producedUnits),
			Available:       available,
			Lots:            lots,
		})
	}
	return result, nil
}

// ResolveCompoundMaterials returns the material lines of the compound's formulation covering date.
func (s *Service) ResolveCompoundMaterials(ctx context.Context, ingredientId int, date time.Time) ([]models.FormulationMaterial, error) {
	db := s.DB.WithContext(ctx)
	ingredient, err := models.FetchIngredient(db, ingredientId)
	if err != nil {
		return nil, err
	}
	if ingredient.Type != models.IngredientTypeCompound {
		return nil, models.NewInvalidInput(fmt.Sprintf("ingredient %d is not a compound", ingredientId))
	}
	formulation, err := models.ActiveFormulation(db, ingredientId, utils.DateOnly(date, s.Settings.Location))
	if err != nil {
		return nil, err
	}
	return formulation.Materials, nil
}

// checkActingSupplier rejects supplier-side operations on another supplier's ingredients.
// Calls without a supplier principal are not restricted.
func checkActingSupplier(ctx context.Context, supplierId int) error {
	acting, ok := utils.GetSupplierIdFromContext(ctx)
	if !ok || acting == supplierId {
		return nil
	}
	return models.NewInvalidInput(fmt.Sprintf("supplier %d cannot act for supplier %d", acting, supplierId))
}
