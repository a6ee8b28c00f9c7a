package commands

const usage = `mes - manufacturing execution core

USAGE:
    mes simulate -scenario <dir> -product <id> [-quantity <n>]
    mes run -scenario <dir> -product <id> -routing <id> [-quantity <n>]

OPTIONS:
    -scenario <dir>     Path to scenario directory containing CSV files
    -config <file>      YAML configuration file (optional)
    -env <file>         .env file with MES_* overrides (optional)
    -product <id>       Product to simulate or produce
    -quantity <n>       Quantity (default: 1)
    -currency <code>    Costing currency (default from config)
    -facility <id>      Facility of the run and its stock (default from config)
    -routing <id>       Routing applied to the run (run only)
    -reserve            Reserve materials before issuing them (run only)
    -declare <list>     Finished goods declared out of a WIP run, e.g. PANEL-A=3,PANEL-B=2
    -metrics-file <f>   Write Prometheus metrics to a text file after the run
    -output <dir>       Output directory for JSON results (optional)
    -format <fmt>       Output format: text, json (default: text)
    -verbose            Enable verbose output and debug logging
    -help               Show this help message

SCENARIO DIRECTORY STRUCTURE:
    scenario_name/
    ├── products.csv    # Product master data (required)
    ├── bom.csv         # Bill of materials links (required)
    ├── prices.csv      # Unit costs
    ├── routings.csv    # Routing task templates
    └── inventory.csv   # On-hand lots

CSV FILE FORMATS:

products.csv:
    product_id,name,unit_of_measure,is_wip_template
    PANEL-WIP,Panel work in progress,EA,true

bom.csv:
    parent_product_id,child_product_id,quantity_per_unit,effective_from,effective_thru,is_template_link
    BIKE,WHEEL,2,2020-01-01,,false

prices.csv:
    product_id,currency_id,amount,effective_from
    RIM,USD,20,2020-01-01

routings.csv:
    routing_id,routing_name,sequence_num,task_name,fixed_asset_id,purpose_type_id,estimated_setup_millis,estimated_run_millis_per_unit
    BIKE-ROUTING,Bicycle assembly,10,cut,SAW-1,MANUFACTURING,600000,120000

inventory.csv:
    product_id,lot_id,facility_id,quantity,receipt_date
    RIM,RIM-0001,PLANT,3,2025-02-01

EXAMPLES:
    # Roll up the cost of two bikes
    mes simulate -scenario testdata/bikeshop -product BIKE -quantity 2

    # Build two bikes, reserving then issuing material
    mes run -scenario testdata/bikeshop -facility PLANT -product BIKE -routing BIKE-ROUTING -quantity 2 -reserve

    # Press 100 panels of WIP and declare finished panels out of it
    mes run -scenario testdata/bikeshop -facility PLANT -product PANEL-WIP -routing PANEL-ROUTING -quantity 100 -declare PANEL-A=3,PANEL-B=4
`
