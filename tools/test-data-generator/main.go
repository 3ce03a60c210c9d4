package main

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math/rand"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/anonkl/pkg/models"
)

type Config struct {
	Records       int      `json:"records"`
	Seed          int64    `json:"seed"`
	OutputFile    string   `json:"output_file"`
	Separator     string   `json:"separator"`
	MinBirthYear  int      `json:"min_birth_year"`
	MaxBirthYear  int      `json:"max_birth_year"`
	Places        []Place  `json:"places"`
	RaceColors    []Weight `json:"race_colors"`
	MalformedRate float64  `json:"malformed_rate"`
}

// Place is a city with its neighbourhoods.
type Place struct {
	State         string   `json:"state"`
	City          string   `json:"city"`
	Neighborhoods []string `json:"neighborhoods"`
}

type Weight struct {
	Value  string  `json:"value"`
	Weight float64 `json:"weight"`
}

type Generator struct {
	config *Config
	logger *logrus.Logger
	rand   *rand.Rand
}

func main() {
	var (
		configFile = flag.String("config", "", "Configuration file path (JSON)")
		records    = flag.Int("records", 1000, "Number of records to generate")
		seed       = flag.Int64("seed", 0, "Random seed (0 uses the current time)")
		output     = flag.String("output", "dados.csv", "Output file")
		malformed  = flag.Float64("malformed", 0, "Fraction of records with a malformed quasi-identifier")
		verbose    = flag.Bool("verbose", false, "Enable verbose logging")
	)
	flag.Parse()

	logger := logrus.New()
	if *verbose {
		logger.SetLevel(logrus.DebugLevel)
	}

	var config *Config
	if *configFile != "" {
		var err error
		config, err = loadConfig(*configFile)
		if err != nil {
			log.Fatalf("Failed to load config: %v", err)
		}
	} else {
		config = getDefaultConfig()
		config.Records = *records
		config.Seed = *seed
		config.OutputFile = *output
		config.MalformedRate = *malformed
	}

	generator := NewGenerator(config, logger)

	logger.WithFields(logrus.Fields{
		"records":     config.Records,
		"seed":        config.Seed,
		"output_file": config.OutputFile,
	}).Info("Starting test data generation")

	dataset, err := generator.Generate(context.Background())
	if err != nil {
		log.Fatalf("Failed to generate data: %v", err)
	}

	if err := generator.SaveToFile(dataset, config.OutputFile); err != nil {
		log.Fatalf("Failed to save data: %v", err)
	}

	logger.WithFields(logrus.Fields{
		"records_generated": dataset.Len(),
		"output_file":       config.OutputFile,
	}).Info("Test data generation completed")
}

func NewGenerator(config *Config, logger *logrus.Logger) *Generator {
	if config == nil {
		config = getDefaultConfig()
	}
	if logger == nil {
		logger = logrus.New()
	}
	seed := config.Seed
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &Generator{
		config: config,
		logger: logger,
		rand:   rand.New(rand.NewSource(seed)),
	}
}

// Generate builds config.Records synthetic health records.
func (g *Generator) Generate(ctx context.Context) (*models.Dataset, error) {
	if len(g.config.Places) == 0 || len(g.config.RaceColors) == 0 {
		return nil, fmt.Errorf("places and race_colors must not be empty")
	}
	if g.config.MaxBirthYear < g.config.MinBirthYear {
		return nil, fmt.Errorf("max_birth_year %d is before min_birth_year %d", g.config.MaxBirthYear, g.config.MinBirthYear)
	}

	dataset := &models.Dataset{
		Columns: []string{models.ColumnName, models.ColumnCPF,
			string(models.AttributeLocation), string(models.AttributeBirthDate), string(models.AttributeRaceColor)},
		Records: make([]*models.Record, 0, g.config.Records),
	}

	for i := 0; i < g.config.Records; i++ {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		dataset.Records = append(dataset.Records, g.generateRecord(i))
	}

	return dataset, nil
}

func (g *Generator) generateRecord(index int) *models.Record {
	place := g.config.Places[g.rand.Intn(len(g.config.Places))]
	neighborhood := place.Neighborhoods[g.rand.Intn(len(place.Neighborhoods))]

	record := &models.Record{
		Index:     index,
		Name:      fmt.Sprintf("Paciente %d", index+1),
		CPF:       fmt.Sprintf("%011d", g.rand.Int63n(1e11)),
		Location:  fmt.Sprintf("%s/%s/%s", neighborhood, place.City, place.State),
		BirthDate: g.generateBirthDate(),
		RaceColor: g.pickRaceColor(),
	}

	if g.config.MalformedRate > 0 && g.rand.Float64() < g.config.MalformedRate {
		if g.rand.Intn(2) == 0 {
			record.Location = fmt.Sprintf("%s//%s", place.City, place.State)
		} else {
			record.BirthDate = "31/02/" + record.BirthDate[len(record.BirthDate)-4:]
		}
	}

	return record
}

func (g *Generator) generateBirthDate() string {
	start := time.Date(g.config.MinBirthYear, 1, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(g.config.MaxBirthYear, 12, 31, 0, 0, 0, 0, time.UTC)
	days := int(end.Sub(start).Hours()/24) + 1
	return start.AddDate(0, 0, g.rand.Intn(days)).Format("02/01/2006")
}

func (g *Generator) pickRaceColor() string {
	total := 0.0
	for _, w := range g.config.RaceColors {
		total += w.Weight
	}
	target := g.rand.Float64() * total
	for _, w := range g.config.RaceColors {
		target -= w.Weight
		if target < 0 {
			return w.Value
		}
	}
	return g.config.RaceColors[len(g.config.RaceColors)-1].Value
}

func (g *Generator) SaveToFile(dataset *models.Dataset, filename string) error {
	file, err := os.Create(filename)
	if err != nil {
		return fmt.Errorf("failed to create file: %w", err)
	}
	defer file.Close()

	return g.Write(file, dataset)
}

// Write renders dataset as CSV with the configured separator.
func (g *Generator) Write(w io.Writer, dataset *models.Dataset) error {
	writer := csv.NewWriter(w)
	if len(g.config.Separator) == 1 {
		writer.Comma = rune(g.config.Separator[0])
	}

	if err := writer.Write(dataset.Columns); err != nil {
		return err
	}
	for _, record := range dataset.Records {
		row := []string{record.Name, record.CPF, record.Location, record.BirthDate, record.RaceColor}
		if err := writer.Write(row); err != nil {
			return err
		}
	}

	writer.Flush()
	return writer.Error()
}

func loadConfig(filename string) (*Config, error) {
	file, err := os.Open(filename)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	config := getDefaultConfig()
	if err := json.NewDecoder(file).Decode(config); err != nil {
		return nil, err
	}

	return config, nil
}

func getDefaultConfig() *Config {
	return &Config{
		Records:      1000,
		OutputFile:   "dados.csv",
		Separator:    ";",
		MinBirthYear: 1940,
		MaxBirthYear: 2020,
		Places: []Place{
			{State: "CE", City: "Fortaleza", Neighborhoods: []string{"Centro", "Aldeota", "Meireles", "Benfica", "Messejana"}},
			{State: "CE", City: "Sobral", Neighborhoods: []string{"Centro", "Junco", "Derby", "Dom Expedito"}},
			{State: "PE", City: "Recife", Neighborhoods: []string{"Boa Viagem", "Casa Forte", "Madalena"}},
			{State: "BA", City: "Salvador", Neighborhoods: []string{"Barra", "Pituba", "Liberdade"}},
		},
		RaceColors: []Weight{
			{Value: "PARDA", Weight: 0.45},
			{Value: "BRANCA", Weight: 0.43},
			{Value: "PRETA", Weight: 0.10},
			{Value: "AMARELA", Weight: 0.01},
			{Value: "INDÍGENA", Weight: 0.005},
			{Value: "", Weight: 0.005},
		},
	}
}
