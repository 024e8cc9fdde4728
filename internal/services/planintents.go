package services

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/vilepilates/studio/internal/models"
)

// SelectPlan records that the client picked a membership. Picking the same
// plan again refreshes the selection time and reopens it.
func SelectPlan(ctx context.Context, gdb *gorm.DB, clientID, membershipID uint, now time.Time) (models.PlanIntent, error) {
	var pi models.PlanIntent
	err := gdb.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var c models.Client
		if err := tx.First(&c, clientID).Error; err != nil {
			return notFound(err, "Cliente no encontrado.")
		}
		var m models.Membership
		if err := tx.First(&m, membershipID).Error; err != nil {
			return notFound(err, "Membresía no encontrada.")
		}
		pi = models.PlanIntent{ClientID: clientID, MembershipID: membershipID, SelectedAt: now.UTC()}
		if err := tx.Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "client_id"}, {Name: "membership_id"}},
			DoUpdates: clause.Assignments(map[string]any{"selected_at": pi.SelectedAt, "is_confirmed": false}),
		}).Omit(clause.Associations).Create(&pi).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ? AND membership_id = ?", clientID, membershipID).First(&pi).Error; err != nil {
			return err
		}
		pi.Client, pi.Membership = c, m
		return nil
	})
	return pi, err
}

func PlanIntentsByClient(gdb *gorm.DB, clientID uint) ([]models.PlanIntent, error) {
	var out []models.PlanIntent
	err := gdb.Preload("Membership").
		Where("client_id = ?", clientID).
		Order("selected_at DESC, id DESC").
		Find(&out).Error
	return out, err
}

type PotentialClient struct {
	Client     models.Client      `json:"client"`
	PlanIntent *models.PlanIntent `json:"plan_intent"`
}

// PotentialClients lists every client who still has the free trial, with
// their latest open plan intent if any, followed by clients who used the
// trial and have an open intent.
func PotentialClients(gdb *gorm.DB) ([]PotentialClient, error) {
	var intents []models.PlanIntent
	if err := gdb.Preload("Membership").
		Where("is_confirmed = ?", false).
		Order("selected_at DESC, id DESC").
		Find(&intents).Error; err != nil {
		return nil, err
	}
	latest := map[uint]*models.PlanIntent{}
	for i := range intents {
		if latest[intents[i].ClientID] == nil {
			latest[intents[i].ClientID] = &intents[i]
		}
	}

	var fresh []models.Client
	if err := gdb.Where("trial_used = ?", false).Order("id").Find(&fresh).Error; err != nil {
		return nil, err
	}
	out := make([]PotentialClient, 0, len(fresh))
	for _, c := range fresh {
		out = append(out, PotentialClient{Client: c, PlanIntent: latest[c.ID]})
	}

	var used []models.Client
	if err := gdb.Where("trial_used = ?", true).Order("id").Find(&used).Error; err != nil {
		return nil, err
	}
	for _, c := range used {
		if pi := latest[c.ID]; pi != nil {
			out = append(out, PotentialClient{Client: c, PlanIntent: pi})
		}
	}
	return out, nil
}
