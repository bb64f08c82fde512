package models

import "gorm.io/gorm"

// AllModels lists every table in dependency order.
func AllModels() []interface{} {
	return []interface{}{
		&Manufacturer{}, &Supplier{}, &Category{},
		&Product{}, &RecipePlan{}, &RecipeIngredient{},
		&Ingredient{}, &Formulation{}, &FormulationMaterial{},
		&IngredientBatch{},
		&ProductBatch{}, &BatchConsumption{},
		&OutboxRecord{},
	}
}

func MigrateTable(db *gorm.DB) error {
	return db.AutoMigrate(AllModels()...)
}
