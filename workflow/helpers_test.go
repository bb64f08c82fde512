package workflow

import (
	"context"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/mmdatafocus/batchtrace_backend/config"
	"github.com/mmdatafocus/batchtrace_backend/models"
	"github.com/mmdatafocus/batchtrace_backend/utils"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// 2024-01-01 around noon; the admission horizon is 2024-03-31.
var fixedNow = time.Date(2024, 1, 1, 12, 30, 0, 0, time.UTC)

// openTestDB returns an in-memory store on a single connection, so concurrent units of work run one
// after another the way row locks would order them.
func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), config.NewGormConfig())
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	require.NoError(t, models.MigrateTable(db))
	return db
}

func newTestService(t *testing.T) *Service {
	t.Helper()
	svc := NewService(openTestDB(t), config.NewLogger("error"), config.DefaultSettings())
	svc.Now = func() time.Time { return fixedNow }
	svc.Locker = nil
	svc.RetryBackoff = time.Millisecond
	return svc
}

type fixture struct {
	svc       *Service
	ctx       context.Context
	product   *models.Product
	beef      *models.Ingredient
	seasoning *models.Ingredient
}

const (
	testManufacturer = "MFG001"
	testSupplier     = 20
	testProduct      = 100
)

// newFixture seeds one manufacturer, one supplier, two atomic ingredients and product 100 with a
// standard batch of 100 units.
func newFixture(t *testing.T) *fixture {
	t.Helper()
	return seedFixture(t, newTestService(t))
}

func seedFixture(t *testing.T, svc *Service) *fixture {
	t.Helper()
	ctx := context.Background()

	_, err := svc.CreateManufacturer(ctx, models.NewManufacturer{ID: testManufacturer, Name: "Manufacturer A"})
	require.NoError(t, err)
	_, err = svc.CreateSupplier(ctx, models.NewSupplier{ID: testSupplier, Name: "Supplier A"})
	require.NoError(t, err)
	product, err := svc.CreateProduct(ctx, models.NewProduct{
		ID:                testProduct,
		Name:              "Steak Dinner",
		ManufacturerId:    testManufacturer,
		StandardBatchSize: 100,
	})
	require.NoError(t, err)

	f := &fixture{svc: svc, ctx: ctx, product: product}
	f.beef = f.defineAtomic(t, "Beef Steak")
	f.seasoning = f.defineAtomic(t, "Seasoning Blend")
	return f
}

func (f *fixture) defineAtomic(t *testing.T, name string) *models.Ingredient {
	t.Helper()
	ingredient, err := f.svc.DefineIngredient(f.ctx, models.NewIngredient{
		SupplierId: testSupplier,
		Name:       name,
		Type:       models.IngredientTypeAtomic,
		Formulation: models.NewFormulation{
			PackSize:           dec("8"),
			UnitPrice:          dec("4"),
			EffectiveStartDate: date("2023-01-01"),
		},
	})
	require.NoError(t, err)
	return ingredient
}

// activeRecipe activates beef 2.5 oz and seasoning 0.25 oz per unit.
func (f *fixture) activeRecipe(t *testing.T) *models.RecipePlan {
	t.Helper()
	plan, err := f.svc.CreateRecipePlan(f.ctx, models.NewRecipePlan{
		ProductId: testProduct,
		Lines: []models.NewRecipeLine{
			{IngredientId: f.beef.ID, QuantityRequired: dec("2.5")},
			{IngredientId: f.seasoning.ID, QuantityRequired: dec("0.25")},
		},
		Activate: true,
	})
	require.NoError(t, err)
	return plan
}

func (f *fixture) admit(t *testing.T, ingredientId int, label string, qty string, cost string, expires string) *models.IngredientBatch {
	t.Helper()
	manufacturer := testManufacturer
	lot, err := f.svc.AdmitIngredientBatch(f.ctx, models.NewIngredientBatch{
		IngredientId:   ingredientId,
		SupplierId:     testSupplier,
		ManufacturerId: &manufacturer,
		BatchId:        label,
		Quantity:       dec(qty),
		CostPerUnit:    dec(cost),
		ExpirationDate: date(expires),
	})
	require.NoError(t, err)
	return lot
}

func (f *fixture) lot(t *testing.T, lotNumber string) models.IngredientBatch {
	t.Helper()
	var lot models.IngredientBatch
	require.NoError(t, f.svc.DB.Where("lot_number = ?", lotNumber).First(&lot).Error)
	return lot
}

func (f *fixture) count(t *testing.T, model interface{}) int64 {
	t.Helper()
	var n int64
	require.NoError(t, f.svc.DB.Model(model).Count(&n).Error)
	return n
}

func dec(v string) decimal.Decimal {
	return decimal.RequireFromString(v)
}

func date(v string) time.Time {
	d, err := utils.ParseDate(v)
	if err != nil {
		panic(err)
	}
	return d
}

func requireDecimal(t *testing.T, want string, got decimal.Decimal) {
	t.Helper()
	require.Truef(t, dec(want).Equal(got), "want %s, got %s", want, got)
}
