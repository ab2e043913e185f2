package service

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/digkill/PlantDoctor/internal/entitlement"
	"github.com/digkill/PlantDoctor/internal/models"
	"github.com/digkill/PlantDoctor/internal/watering"
)

// Home is everything the landing view of a signed-in user needs.
type Home struct {
	User    models.User          `json:"user"`
	Plants  []models.PlantRecord `json:"plants"`
	Usage   Usage                `json:"usage"`
	Overdue []watering.Alert     `json:"overdue"`
	Limits  entitlement.Limits   `json:"limits"`
}

type HomeService struct {
	plants *PlantService
	usage  *UsageService
	gate   *entitlement.Gate
	now    func() time.Time
}

func NewHomeService(plants *PlantService, usage *UsageService, gate *entitlement.Gate) *HomeService {
	return &HomeService{plants: plants, usage: usage, gate: gate, now: time.Now}
}

// Load reads plants and usage concurrently.
func (s *HomeService) Load(ctx context.Context, sess Session) (Home, error) {
	var (
		plants []models.PlantRecord
		usage  Usage
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		plants, err = s.plants.List(gctx, sess)
		return err
	})
	g.Go(func() error {
		var err error
		usage, err = s.usage.Read(gctx, sess.User.Email)
		return err
	})
	if err := g.Wait(); err != nil {
		return Home{}, err
	}

	return Home{
		User:    sess.User,
		Plants:  plants,
		Usage:   usage,
		Overdue: watering.Overdue(plants, s.now()),
		Limits:  s.gate.Limits(),
	}, nil
}
