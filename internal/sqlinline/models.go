package sqlinline

// QUpsertDishModel replaces the registry entry of a dish atomically. The
// unique index on dish_id serializes concurrent completions for one dish.
const QUpsertDishModel = `--sql 87b6e7df-decf-4c79-9f06-68bb55f454a3
insert into dish_models(
  id,
  dish_id,
  asset_url,
  thumbnail_url,
  size_bytes,
  created_at,
  updated_at
) values (
  $1::uuid,
  $2::text,
  $3::text,
  $4::text,
  $5::bigint,
  now(),
  now()
)
on conflict (dish_id) do update set
  asset_url = excluded.asset_url,
  thumbnail_url = excluded.thumbnail_url,
  size_bytes = excluded.size_bytes,
  updated_at = now()
returning id::text, dish_id, asset_url, thumbnail_url, size_bytes, created_at, updated_at;
`

const QSelectDishModel = `--sql c34b12c9-ea4b-4685-a836-5cfc90694cc7
select id::text, dish_id, asset_url, thumbnail_url, size_bytes, created_at, updated_at
from dish_models
where dish_id = $1::text
limit 1;
`

const QListDishModels = `--sql 04d138c7-c5ef-465c-91ed-9b2d31246fc3
select id::text, dish_id, asset_url, thumbnail_url, size_bytes, created_at, updated_at
from dish_models
order by updated_at desc;
`
