package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/FlexMeasures/flexmeasures/internal/domain"
	"github.com/FlexMeasures/flexmeasures/internal/service"
	"github.com/FlexMeasures/flexmeasures/internal/timeseries"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	accountName string

	userName      string
	userEmail     string
	userPassword  string
	userAccountID int64
	userRoles     []string

	assetTypeName        string
	assetTypeDisplayName string
	assetTypeConsumer    bool
	assetTypeProducer    bool
	assetTypeCanCurtail  bool
	assetTypeCanShift    bool

	assetName        string
	assetTypeOfAsset string
	assetOwnerID     int64
	assetCapacityMW  float64
	assetUnit        string
	assetLatitude    float64
	assetLongitude   float64
	assetMarketID    int64
	assetFlexContext string

	weatherType      string
	weatherName      string
	weatherUnit      string
	weatherLatitude  float64
	weatherLongitude float64

	annotationContent    string
	annotationAt         string
	annotationUntil      string
	annotationType       string
	annotationAccountIDs []int64
	annotationUserID     int64
)

var addCmd = &cobra.Command{
	Use:   "add",
	Short: "Add structural data to the database",
}

var addAccountCmd = &cobra.Command{
	Use:   "account",
	Short: "Add an account",
	Args:  cobra.NoArgs,
	RunE:  runAddAccount,
}

var addUserCmd = &cobra.Command{
	Use:   "user",
	Short: "Add a user to an account",
	Long: `Adds a user with a bcrypt-hashed password. Roles are given as a comma
separated list, e.g. --roles Prosumer,MDC.`,
	Args: cobra.NoArgs,
	RunE: runAddUser,
}

var addAssetTypeCmd = &cobra.Command{
	Use:   "asset-type",
	Short: "Add an asset type",
	Args:  cobra.NoArgs,
	RunE:  runAddAssetType,
}

var addAssetCmd = &cobra.Command{
	Use:   "asset",
	Short: "Add an asset together with its power sensor",
	Long: `Adds an asset and creates the sensor its power data is recorded on.

The flex context is given as a JSON object, or as @path to read it from a file:
  fmctl add asset --name battery --asset-type battery --owner-id 1 \
    --flex-context '{"consumption-price-sensor": 3}'`,
	Args: cobra.NoArgs,
	RunE: runAddAsset,
}

var addWeatherSensorCmd = &cobra.Command{
	Use:   "weather-sensor",
	Short: "Add a weather sensor",
	Args:  cobra.NoArgs,
	RunE:  runAddWeatherSensor,
}

var addAnnotationCmd = &cobra.Command{
	Use:   "annotation",
	Short: "Add an annotation to one or more accounts",
	Long: `Adds an annotation covering [--at, --until). Without --until the
annotation lasts one day.`,
	Args: cobra.NoArgs,
	RunE: runAddAnnotation,
}

func init() {
	addAccountCmd.Flags().StringVar(&accountName, "name", "", "Account name (required)")
	_ = addAccountCmd.MarkFlagRequired("name")

	addUserCmd.Flags().StringVar(&userName, "username", "", "User name (required)")
	addUserCmd.Flags().StringVar(&userEmail, "email", "", "Email address (required)")
	addUserCmd.Flags().StringVar(&userPassword, "password", "", "Password (required)")
	addUserCmd.Flags().Int64Var(&userAccountID, "account-id", 0, "Account the user belongs to (required)")
	addUserCmd.Flags().StringSliceVar(&userRoles, "roles", nil, "Roles of the user")
	for _, f := range []string{"username", "email", "password", "account-id"} {
		_ = addUserCmd.MarkFlagRequired(f)
	}

	addAssetTypeCmd.Flags().StringVar(&assetTypeName, "name", "", "Asset type name (required)")
	addAssetTypeCmd.Flags().StringVar(&assetTypeDisplayName, "display-name", "", "Display name")
	addAssetTypeCmd.Flags().BoolVar(&assetTypeConsumer, "consumer", false, "Assets of this type consume power")
	addAssetTypeCmd.Flags().BoolVar(&assetTypeProducer, "producer", false, "Assets of this type produce power")
	addAssetTypeCmd.Flags().BoolVar(&assetTypeCanCurtail, "can-curtail", false, "Assets of this type can curtail")
	addAssetTypeCmd.Flags().BoolVar(&assetTypeCanShift, "can-shift", false, "Assets of this type can shift load")
	_ = addAssetTypeCmd.MarkFlagRequired("name")

	addAssetCmd.Flags().StringVar(&assetName, "name", "", "Asset name (required)")
	addAssetCmd.Flags().StringVar(&assetTypeOfAsset, "asset-type", "", "Asset type name (required)")
	addAssetCmd.Flags().Int64Var(&assetOwnerID, "owner-id", 0, "Owning user (required)")
	addAssetCmd.Flags().Float64Var(&assetCapacityMW, "capacity-mw", 0, "Capacity in MW")
	addAssetCmd.Flags().StringVar(&assetUnit, "unit", "MW", "Unit of the power sensor")
	addAssetCmd.Flags().Float64Var(&assetLatitude, "latitude", 0, "Latitude")
	addAssetCmd.Flags().Float64Var(&assetLongitude, "longitude", 0, "Longitude")
	addAssetCmd.Flags().Int64Var(&assetMarketID, "market-id", 0, "Market whose prices apply to the asset")
	addAssetCmd.Flags().StringVar(&assetFlexContext, "flex-context", "", "Flex context as JSON, or @file")
	for _, f := range []string{"name", "asset-type", "owner-id"} {
		_ = addAssetCmd.MarkFlagRequired(f)
	}

	addWeatherSensorCmd.Flags().StringVar(&weatherType, "sensor-type", "", "Weather sensor type, e.g. temperature (required)")
	addWeatherSensorCmd.Flags().StringVar(&weatherName, "name", "", "Sensor name (defaults to the type)")
	addWeatherSensorCmd.Flags().StringVar(&weatherUnit, "unit", "", "Unit, e.g. °C (required)")
	addWeatherSensorCmd.Flags().Float64Var(&weatherLatitude, "latitude", 0, "Latitude (required)")
	addWeatherSensorCmd.Flags().Float64Var(&weatherLongitude, "longitude", 0, "Longitude (required)")
	for _, f := range []string{"sensor-type", "unit", "latitude", "longitude"} {
		_ = addWeatherSensorCmd.MarkFlagRequired(f)
	}

	addAnnotationCmd.Flags().StringVar(&annotationContent, "content", "", "Annotation text (required)")
	addAnnotationCmd.Flags().StringVar(&annotationAt, "at", "", "Start of the annotation, ISO 8601 (required)")
	addAnnotationCmd.Flags().StringVar(&annotationUntil, "until", "", "End of the annotation, ISO 8601")
	addAnnotationCmd.Flags().StringVar(&annotationType, "type", "label", "Annotation type: label, holiday, alert or feedback")
	addAnnotationCmd.Flags().Int64SliceVar(&annotationAccountIDs, "account-id", nil, "Account to annotate (repeatable)")
	addAnnotationCmd.Flags().Int64Var(&annotationUserID, "user-id", 0, "User who made the annotation")
	for _, f := range []string{"content", "at", "account-id"} {
		_ = addAnnotationCmd.MarkFlagRequired(f)
	}

	addCmd.AddCommand(addAccountCmd)
	addCmd.AddCommand(addUserCmd)
	addCmd.AddCommand(addAssetTypeCmd)
	addCmd.AddCommand(addAssetCmd)
	addCmd.AddCommand(addWeatherSensorCmd)
	addCmd.AddCommand(addAnnotationCmd)
}

func runAddAccount(cmd *cobra.Command, args []string) error {
	return withBackend(func(ctx context.Context, b *backend) error {
		a, err := b.accounts.CreateAccount(ctx, accountName)
		if err != nil {
			return err
		}
		logger.Info("account added", zap.Int64("account_id", a.ID))
		fmt.Fprintf(cmd.OutOrStdout(), "Account '%s' created successfully with id %d.\n", a.Name, a.ID)
		return nil
	})
}

func runAddUser(cmd *cobra.Command, args []string) error {
	return withBackend(func(ctx context.Context, b *backend) error {
		u, err := b.accounts.CreateUser(ctx, service.NewUser{
			Username:  userName,
			Email:     userEmail,
			Password:  userPassword,
			AccountID: userAccountID,
			Roles:     userRoles,
		})
		if err != nil {
			return err
		}
		logger.Info("user added", zap.Int64("user_id", u.ID), zap.Int64("account_id", u.AccountID))
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully created user %s with id %d.\n", u.Email, u.ID)
		return nil
	})
}

func runAddAssetType(cmd *cobra.Command, args []string) error {
	return withBackend(func(ctx context.Context, b *backend) error {
		t, err := b.assets.CreateType(ctx, domain.AssetType{
			Name:        assetTypeName,
			DisplayName: assetTypeDisplayName,
			IsConsumer:  assetTypeConsumer,
			IsProducer:  assetTypeProducer,
			CanCurtail:  assetTypeCanCurtail,
			CanShift:    assetTypeCanShift,
		})
		if err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully created asset type %s.\n", t.Name)
		return nil
	})
}

func runAddAsset(cmd *cobra.Command, args []string) error {
	flexContext, err := readFlexContext(assetFlexContext)
	if err != nil {
		return err
	}
	a := &domain.Asset{
		Name:          assetName,
		AssetTypeName: assetTypeOfAsset,
		OwnerID:       assetOwnerID,
		CapacityInMW:  assetCapacityMW,
		Unit:          assetUnit,
		Latitude:      assetLatitude,
		Longitude:     assetLongitude,
		FlexContext:   flexContext,
	}
	if assetMarketID != 0 {
		id := assetMarketID
		a.MarketID = &id
	}

	return withBackend(func(ctx context.Context, b *backend) error {
		if err := b.assets.Create(ctx, a); err != nil {
			return err
		}
		logger.Info("asset added", zap.Int64("asset_id", a.ID), zap.Int64("sensor_id", a.SensorID))
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully created asset with id %d (power sensor %d).\n", a.ID, a.SensorID)
		return nil
	})
}

// readFlexContext accepts inline JSON or @path.
func readFlexContext(v string) (json.RawMessage, error) {
	if v == "" {
		return nil, nil
	}
	data := []byte(v)
	if path, ok := strings.CutPrefix(v, "@"); ok {
		var err error
		if data, err = os.ReadFile(path); err != nil {
			return nil, fmt.Errorf("read flex context: %w", err)
		}
	}
	if !json.Valid(data) {
		return nil, errors.New("flex context is not valid JSON")
	}
	return data, nil
}

func runAddWeatherSensor(cmd *cobra.Command, args []string) error {
	ws := &domain.WeatherSensor{
		Name:                  weatherName,
		WeatherSensorTypeName: weatherType,
		Unit:                  weatherUnit,
		Latitude:              weatherLatitude,
		Longitude:             weatherLongitude,
	}
	return withBackend(func(ctx context.Context, b *backend) error {
		if err := b.weather.Create(ctx, ws); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Successfully created weather sensor with id %d.\n", ws.ID)
		return nil
	})
}

func runAddAnnotation(cmd *cobra.Command, args []string) error {
	start, err := timeseries.ParseTime(annotationAt)
	if err != nil {
		return fmt.Errorf("--at: %w", err)
	}
	var end time.Time
	if annotationUntil != "" {
		if end, err = timeseries.ParseTime(annotationUntil); err != nil {
			return fmt.Errorf("--until: %w", err)
		}
	}
	na := service.NewAnnotation{
		Content:    annotationContent,
		Start:      start,
		End:        end,
		Type:       annotationType,
		AccountIDs: annotationAccountIDs,
	}
	if annotationUserID != 0 {
		id := annotationUserID
		na.UserID = &id
	}

	return withBackend(func(ctx context.Context, b *backend) error {
		a, err := b.annotations.Add(ctx, na)
		if err != nil {
			return err
		}
		logger.Info("annotation added", zap.Int64("annotation_id", a.ID))
		fmt.Fprintln(cmd.OutOrStdout(), "Successfully added annotation")
		return nil
	})
}
