package stat

import (
	"github.com/gofiber/fiber/v2"

	"github.com/GintGld/livedash/internal/models"
)

func New(
	stat Stat,
) *fiber.App {
	statCtr := &statController{
		stat: stat,
	}

	app := fiber.New()

	app.Get("/streams", statCtr.streams)
	app.Get("/streams/number", statCtr.streamsNumber)

	return app
}

type statController struct {
	stat Stat
}

type Stat interface {
	Streams() []models.StreamInfo
	Len() int
}

func (statCtr *statController) streams(c *fiber.Ctx) error {
	res := statCtr.stat.Streams()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"streams": res,
	})
}

func (statCtr *statController) streamsNumber(c *fiber.Ctx) error {
	n := statCtr.stat.Len()

	return c.Status(fiber.StatusOK).JSON(fiber.Map{
		"streams": n,
	})
}
